package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/logwarden/logwarden/internal/types"
)

// --- Alert Storage ---

// AlertFilter narrows ListAlerts results. Zero values mean "no filter".
type AlertFilter struct {
	Type     types.AlertType
	Level    types.AlertLevel
	Status   types.AlertStatus
	IP       string
	User     string
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

const alertColumns = `id, alert_type, alert_level, title, description,
	related_ip, related_user, related_log_ids, trigger_count, status,
	handler_user_id, handler_note, handled_at, extra_data, created_at, updated_at`

// CreateAlert persists a new alert and assigns its id.
func (s *SQLite) CreateAlert(a *types.Alert) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	if a.TriggerCount < 1 {
		a.TriggerCount = 1
	}
	if a.Status == "" {
		a.Status = types.StatusUnhandled
	}

	res, err := s.db.Exec(
		`INSERT INTO alerts (alert_type, alert_level, title, description,
			related_ip, related_user, related_log_ids, trigger_count, status,
			handler_user_id, handler_note, handled_at, extra_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.AlertType), string(a.AlertLevel), a.Title, a.Description,
		a.RelatedIP, a.RelatedUser, encodeIDList(a.RelatedLogIDs), a.TriggerCount,
		string(a.Status), a.HandlerUserID, a.HandlerNote, a.HandledAt, a.ExtraData,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

// UpdateAlert writes back every mutable alert field.
func (s *SQLite) UpdateAlert(a *types.Alert) error {
	res, err := s.db.Exec(
		`UPDATE alerts SET alert_type=?, alert_level=?, title=?, description=?,
			related_ip=?, related_user=?, related_log_ids=?, trigger_count=?, status=?,
			handler_user_id=?, handler_note=?, handled_at=?, extra_data=?, updated_at=?
		 WHERE id=?`,
		string(a.AlertType), string(a.AlertLevel), a.Title, a.Description,
		a.RelatedIP, a.RelatedUser, encodeIDList(a.RelatedLogIDs), a.TriggerCount,
		string(a.Status), a.HandlerUserID, a.HandlerNote, a.HandledAt, a.ExtraData,
		a.UpdatedAt, a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("alert %d not found", a.ID)
	}
	return err
}

// AlertByID retrieves an alert. Returns nil when not found.
func (s *SQLite) AlertByID(id int64) (*types.Alert, error) {
	row := s.db.QueryRow(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	return scanAlertRow(row)
}

// FindOpenAlert returns the newest open (UNHANDLED or HANDLING) alert of the
// given type whose correlation fields match and which was created at or after
// since. Empty ip/user arguments are not matched against. Returns nil when
// no such alert exists.
func (s *SQLite) FindOpenAlert(alertType types.AlertType, ip, user string, since time.Time) (*types.Alert, error) {
	conds := []string{"alert_type = ?", "status IN ('UNHANDLED', 'HANDLING')", "created_at >= ?"}
	args := []interface{}{string(alertType), since}
	if ip != "" {
		conds = append(conds, "related_ip = ?")
		args = append(args, ip)
	}
	if user != "" {
		conds = append(conds, "related_user = ?")
		args = append(args, user)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at DESC LIMIT 1`
	row := s.db.QueryRow(query, args...)
	return scanAlertRow(row)
}

// ListAlerts returns a filtered page of alerts plus the total match count.
func (s *SQLite) ListAlerts(f AlertFilter) ([]types.Alert, int, error) {
	where, args := buildAlertWhere(f)

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, pageSize := NormalizePage(f.Page, f.PageSize)
	query := `SELECT ` + alertColumns + ` FROM alerts` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, total, rows.Err()
}

func buildAlertWhere(f AlertFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Type != "" {
		conds = append(conds, "alert_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Level != "" {
		conds = append(conds, "alert_level = ?")
		args = append(args, string(f.Level))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.IP != "" {
		conds = append(conds, "related_ip LIKE ?")
		args = append(args, "%"+f.IP+"%")
	}
	if f.User != "" {
		conds = append(conds, "related_user LIKE ?")
		args = append(args, "%"+f.User+"%")
	}
	if f.Start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *f.End)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// SetAlertStatus applies an operator status transition, recording who handled
// the alert and when. This is the only path that moves an alert out of the
// engine-owned UNHANDLED state.
func (s *SQLite) SetAlertStatus(id int64, status types.AlertStatus, handlerUserID, note string) (*types.Alert, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`UPDATE alerts SET status=?, handler_user_id=?, handler_note=?, handled_at=?, updated_at=?
		 WHERE id=?`,
		string(status), handlerUserID, note, now, now, id,
	)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return s.AlertByID(id)
}

// --- Alert Stats ---

// CountAlerts returns the number of alerts created within the optional range.
func (s *SQLite) CountAlerts(start, end *time.Time) (int, error) {
	where, args := statsWhere(start, end)
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM alerts"+where, args...).Scan(&count)
	return count, err
}

// CountAlertsByStatus returns per-status alert counts within the optional range.
func (s *SQLite) CountAlertsByStatus(start, end *time.Time) (map[string]int, error) {
	return s.countAlertsBy("status", start, end)
}

// CountAlertsByLevel returns per-level alert counts within the optional range.
func (s *SQLite) CountAlertsByLevel(start, end *time.Time) (map[string]int, error) {
	return s.countAlertsBy("alert_level", start, end)
}

// CountAlertsByType returns per-type alert counts within the optional range.
func (s *SQLite) CountAlertsByType(start, end *time.Time) (map[string]int, error) {
	return s.countAlertsBy("alert_type", start, end)
}

func (s *SQLite) countAlertsBy(column string, start, end *time.Time) (map[string]int, error) {
	where, args := statsWhere(start, end)
	rows, err := s.db.Query(
		"SELECT "+column+", COUNT(*) FROM alerts"+where+" GROUP BY "+column, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func statsWhere(start, end *time.Time) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *start)
	}
	if end != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *end)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// OpenAlertCount returns the number of alerts still awaiting handling.
func (s *SQLite) OpenAlertCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM alerts WHERE status IN ('UNHANDLED', 'HANDLING')").Scan(&count)
	return count, err
}

// --- Scan helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertRow(row *sql.Row) (*types.Alert, error) {
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func scanAlert(row rowScanner) (*types.Alert, error) {
	var a types.Alert
	var alertType, alertLevel, status, idList string
	var handledAt *time.Time
	if err := row.Scan(&a.ID, &alertType, &alertLevel, &a.Title, &a.Description,
		&a.RelatedIP, &a.RelatedUser, &idList, &a.TriggerCount, &status,
		&a.HandlerUserID, &a.HandlerNote, &handledAt, &a.ExtraData,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.AlertType = types.AlertType(alertType)
	a.AlertLevel = types.AlertLevel(alertLevel)
	a.Status = types.AlertStatus(status)
	a.HandledAt = handledAt
	a.RelatedLogIDs = parseIDList(idList)
	return &a, nil
}

// NormalizePage clamps pagination parameters to sane bounds. List queries
// apply it internally; callers building response envelopes should apply it
// too so the reported page size matches the rows actually returned.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
