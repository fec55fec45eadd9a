// Package storage provides persistent storage for logwarden using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/logwarden/logwarden/internal/types"
	_ "modernc.org/sqlite"
)

// SQLite implements the storage layer using SQLite3.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLite opens or creates a SQLite database.
func NewSQLite(dsn string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// SQLite serializes writers anyway, and a single pooled connection
	// keeps :memory: databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	s := &SQLite{
		db:     db,
		logger: logger.With().Str("component", "storage").Logger(),
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for packages that need direct access.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// migrate creates the database schema.
func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			level TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			ip TEXT NOT NULL DEFAULT '',
			user TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			raw_data TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_type TEXT NOT NULL,
			alert_level TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			related_ip TEXT NOT NULL DEFAULT '',
			related_user TEXT NOT NULL DEFAULT '',
			related_log_ids TEXT NOT NULL DEFAULT '',
			trigger_count INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'UNHANDLED',
			handler_user_id TEXT NOT NULL DEFAULT '',
			handler_note TEXT NOT NULL DEFAULT '',
			handled_at DATETIME,
			extra_data TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS system_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_key TEXT UNIQUE NOT NULL,
			config_value TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'system',
			description TEXT NOT NULL DEFAULT '',
			value_type TEXT NOT NULL DEFAULT 'string',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'auditor',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS operation_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL DEFAULT '',
			resource_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT 'SUCCESS',
			ip_address TEXT NOT NULL DEFAULT '',
			request_method TEXT NOT NULL DEFAULT '',
			request_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_ip ON logs(ip)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_user ON logs(user)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_type_status ON alerts(alert_type, status)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_configs_key ON system_configs(config_key)`,
		`CREATE INDEX IF NOT EXISTS idx_oplogs_created ON operation_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_oplogs_user ON operation_logs(user_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration error: %w\nSQL: %s", err, m)
		}
	}

	s.logger.Info().Msg("database migrations complete")
	return nil
}

// --- Log Storage ---

// LogFilter narrows ListLogs results. Zero values mean "no filter".
type LogFilter struct {
	Source   string
	Level    types.LogLevel
	IP       string
	User     string
	Message  string // substring match
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

// InsertLog persists a log event and assigns its id.
func (s *SQLite) InsertLog(event *types.LogEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO logs (source, level, timestamp, ip, user, message, raw_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Source, string(event.Level), event.Timestamp, event.IP,
		event.User, event.Message, event.RawData, event.CreatedAt,
	)
	if err != nil {
		return err
	}
	event.ID, err = res.LastInsertId()
	return err
}

// LogByID retrieves a single log event. Returns nil when not found.
func (s *SQLite) LogByID(id int64) (*types.LogEvent, error) {
	row := s.db.QueryRow(
		`SELECT id, source, level, timestamp, ip, user, message, raw_data, created_at
		 FROM logs WHERE id = ?`, id,
	)
	var e types.LogEvent
	var level string
	err := row.Scan(&e.ID, &e.Source, &level, &e.Timestamp, &e.IP, &e.User,
		&e.Message, &e.RawData, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Level = types.LogLevel(level)
	return &e, nil
}

// ListLogs returns a filtered page of log events plus the total match count.
func (s *SQLite) ListLogs(f LogFilter) ([]types.LogEvent, int, error) {
	where, args := buildLogWhere(f)

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, pageSize := NormalizePage(f.Page, f.PageSize)
	query := `SELECT id, source, level, timestamp, ip, user, message, raw_data, created_at
		 FROM logs` + where + ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []types.LogEvent
	for rows.Next() {
		var e types.LogEvent
		var level string
		if err := rows.Scan(&e.ID, &e.Source, &level, &e.Timestamp, &e.IP, &e.User,
			&e.Message, &e.RawData, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Level = types.LogLevel(level)
		events = append(events, e)
	}
	return events, total, rows.Err()
}

func buildLogWhere(f LogFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	if f.Level != "" {
		conds = append(conds, "level = ?")
		args = append(args, string(f.Level))
	}
	if f.IP != "" {
		conds = append(conds, "ip = ?")
		args = append(args, f.IP)
	}
	if f.User != "" {
		conds = append(conds, "user = ?")
		args = append(args, f.User)
	}
	if f.Message != "" {
		conds = append(conds, "message LIKE ?")
		args = append(args, "%"+f.Message+"%")
	}
	if f.Start != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *f.End)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// LogCount returns the total number of stored log events.
func (s *SQLite) LogCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&count)
	return count, err
}

// --- Rule Evidence Queries ---

// FailedLoginGroups returns, per source IP, the ERROR-level events since the
// given time whose message matches any of the LIKE patterns, for IPs with at
// least threshold such events. Events without an IP are ignored.
func (s *SQLite) FailedLoginGroups(since time.Time, patterns []string, threshold int) ([]types.FailureGroup, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	likes := make([]string, len(patterns))
	args := []interface{}{since}
	for i, p := range patterns {
		likes[i] = "message LIKE ?"
		args = append(args, p)
	}
	args = append(args, threshold)

	query := `SELECT ip, COUNT(id), GROUP_CONCAT(id)
		 FROM logs
		 WHERE timestamp >= ? AND level = 'ERROR' AND ip <> ''
		   AND (` + strings.Join(likes, " OR ") + `)
		 GROUP BY ip
		 HAVING COUNT(id) >= ?`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []types.FailureGroup
	for rows.Next() {
		var g types.FailureGroup
		var idList string
		if err := rows.Scan(&g.IP, &g.Count, &idList); err != nil {
			return nil, err
		}
		g.LogIDs = parseIDList(idList)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// LoginIPSpread returns, per user, the distinct source IPs of events since
// the given time whose message matches any of the LIKE patterns, for users
// seen from more than minIPs distinct addresses.
func (s *SQLite) LoginIPSpread(since time.Time, patterns []string, minIPs int) ([]types.IPSpread, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	likes := make([]string, len(patterns))
	args := []interface{}{since}
	for i, p := range patterns {
		likes[i] = "message LIKE ?"
		args = append(args, p)
	}
	args = append(args, minIPs)

	query := `SELECT user, GROUP_CONCAT(DISTINCT ip)
		 FROM logs
		 WHERE timestamp >= ? AND user <> '' AND ip <> ''
		   AND (` + strings.Join(likes, " OR ") + `)
		 GROUP BY user
		 HAVING COUNT(DISTINCT ip) > ?`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spreads []types.IPSpread
	for rows.Next() {
		var sp types.IPSpread
		var ipList string
		if err := rows.Scan(&sp.User, &ipList); err != nil {
			return nil, err
		}
		if ipList != "" {
			sp.IPs = strings.Split(ipList, ",")
		}
		spreads = append(spreads, sp)
	}
	return spreads, rows.Err()
}

// parseIDList converts a GROUP_CONCAT id list ("3,1,7") to int64s.
func parseIDList(list string) []int64 {
	if list == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// encodeIDList is the inverse of parseIDList for the related_log_ids column.
func encodeIDList(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
