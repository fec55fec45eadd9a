package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/logwarden/logwarden/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// --- User Storage ---

// CreateUser persists a new operator account, assigning a fresh id.
func (s *SQLite) CreateUser(u *types.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt,
	)
	return err
}

// UserByUsername retrieves an account by name. Returns nil when not found.
func (s *SQLite) UserByUsername(username string) (*types.User, error) {
	row := s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at, last_login
		 FROM users WHERE username = ?`, username,
	)
	return scanUser(row)
}

// UserByID retrieves an account by id. Returns nil when not found.
func (s *SQLite) UserByID(id string) (*types.User, error) {
	row := s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at, last_login
		 FROM users WHERE id = ?`, id,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*types.User, error) {
	var u types.User
	var lastLogin *time.Time
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.LastLogin = lastLogin
	return &u, nil
}

// TouchLastLogin records a successful login time.
func (s *SQLite) TouchLastLogin(id string) error {
	_, err := s.db.Exec("UPDATE users SET last_login = ? WHERE id = ?", time.Now(), id)
	return err
}

// EnsureDefaultAdmin creates the default admin user if no users exist.
// Returns true if a default user was created (first-run scenario).
func (s *SQLite) EnsureDefaultAdmin() (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return false, fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("logwarden"), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hashing default password: %w", err)
	}

	if err := s.CreateUser(&types.User{
		Username:     "admin",
		PasswordHash: string(hash),
		Role:         "admin",
	}); err != nil {
		return false, fmt.Errorf("creating default admin: %w", err)
	}

	return true, nil
}

// --- Operation Log Storage ---

// OperationFilter narrows ListOperations results.
type OperationFilter struct {
	UserID   string
	Action   string
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

// RecordOperation appends one audit-trail entry.
func (s *SQLite) RecordOperation(op *types.OperationLog) error {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	if op.Result == "" {
		op.Result = "SUCCESS"
	}
	res, err := s.db.Exec(
		`INSERT INTO operation_logs (user_id, username, action, resource_type, resource_id,
			detail, result, ip_address, request_method, request_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.UserID, op.Username, op.Action, op.ResourceType, op.ResourceID,
		op.Detail, op.Result, op.IPAddress, op.RequestMethod, op.RequestURL, op.CreatedAt,
	)
	if err != nil {
		return err
	}
	op.ID, err = res.LastInsertId()
	return err
}

// OperationByID retrieves a single audit entry. Returns nil when not found.
func (s *SQLite) OperationByID(id int64) (*types.OperationLog, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, username, action, resource_type, resource_id,
			detail, result, ip_address, request_method, request_url, created_at
		 FROM operation_logs WHERE id = ?`, id,
	)
	var op types.OperationLog
	err := row.Scan(&op.ID, &op.UserID, &op.Username, &op.Action,
		&op.ResourceType, &op.ResourceID, &op.Detail, &op.Result,
		&op.IPAddress, &op.RequestMethod, &op.RequestURL, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// ListOperations returns a filtered page of audit entries plus the total count.
func (s *SQLite) ListOperations(f OperationFilter) ([]types.OperationLog, int, error) {
	var conds []string
	var args []interface{}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.Start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *f.End)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM operation_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, pageSize := NormalizePage(f.Page, f.PageSize)
	query := `SELECT id, user_id, username, action, resource_type, resource_id,
			detail, result, ip_address, request_method, request_url, created_at
		 FROM operation_logs` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var ops []types.OperationLog
	for rows.Next() {
		var op types.OperationLog
		if err := rows.Scan(&op.ID, &op.UserID, &op.Username, &op.Action,
			&op.ResourceType, &op.ResourceID, &op.Detail, &op.Result,
			&op.IPAddress, &op.RequestMethod, &op.RequestURL, &op.CreatedAt); err != nil {
			return nil, 0, err
		}
		ops = append(ops, op)
	}
	return ops, total, rows.Err()
}
