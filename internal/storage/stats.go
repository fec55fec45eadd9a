package storage

import (
	"fmt"
	"time"

	"github.com/logwarden/logwarden/internal/types"
)

// --- Statistics Queries ---
//
// Aggregations backing the dashboard endpoints. Timestamps are stored as
// text beginning "YYYY-MM-DD HH:MM:SS", so time buckets come from string
// prefixes rather than date functions.

// BucketCount is one named group's row count, e.g. a level, source, or IP.
type BucketCount struct {
	Key   string
	Count int
}

const (
	bucketHour = "substr(%s, 1, 13) || ':00:00'"
	bucketDay  = "substr(%s, 1, 10)"
)

func bucketExpr(column, interval string) string {
	if interval == "day" {
		return fmt.Sprintf(bucketDay, column)
	}
	return fmt.Sprintf(bucketHour, column)
}

func timeRangeWhere(column string, start, end *time.Time) (string, []interface{}) {
	var conds string
	var args []interface{}
	if start != nil {
		conds += " AND " + column + " >= ?"
		args = append(args, *start)
	}
	if end != nil {
		conds += " AND " + column + " <= ?"
		args = append(args, *end)
	}
	return conds, args
}

// CountLogs counts log events within an optional time range.
func (s *SQLite) CountLogs(start, end *time.Time) (int, error) {
	where, args := timeRangeWhere("timestamp", start, end)
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM logs WHERE 1=1"+where, args...).Scan(&n)
	return n, err
}

// CountLogsByTime buckets log counts by hour or day over a time range.
func (s *SQLite) CountLogsByTime(start, end time.Time, interval string) ([]types.TimeBucket, error) {
	return s.countByTime("logs", "timestamp", start, end, interval)
}

// CountAlertsByTime buckets alert creation counts by hour or day.
func (s *SQLite) CountAlertsByTime(start, end time.Time, interval string) ([]types.TimeBucket, error) {
	return s.countByTime("alerts", "created_at", start, end, interval)
}

func (s *SQLite) countByTime(table, column string, start, end time.Time, interval string) ([]types.TimeBucket, error) {
	expr := bucketExpr(column, interval)
	query := `SELECT ` + expr + ` AS slot, COUNT(*) FROM ` + table +
		` WHERE ` + column + ` >= ? AND ` + column + ` <= ?
		 GROUP BY slot ORDER BY slot`
	rows, err := s.db.Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []types.TimeBucket
	for rows.Next() {
		var b types.TimeBucket
		if err := rows.Scan(&b.Time, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// CountLogsByLevel groups log counts by level within an optional range.
func (s *SQLite) CountLogsByLevel(start, end *time.Time) ([]BucketCount, error) {
	where, args := timeRangeWhere("timestamp", start, end)
	query := `SELECT level, COUNT(*) FROM logs WHERE 1=1` + where +
		` GROUP BY level ORDER BY COUNT(*) DESC`
	return s.scanBuckets(query, args)
}

// CountLogsBySource returns the topN log sources by volume.
func (s *SQLite) CountLogsBySource(start, end *time.Time, topN int) ([]BucketCount, error) {
	where, args := timeRangeWhere("timestamp", start, end)
	query := `SELECT source, COUNT(*) FROM logs WHERE 1=1` + where +
		` GROUP BY source ORDER BY COUNT(*) DESC LIMIT ?`
	return s.scanBuckets(query, append(args, topN))
}

// TopLogIPs returns the topN client IPs by event count. Events without an
// IP are skipped.
func (s *SQLite) TopLogIPs(start, end *time.Time, topN int) ([]BucketCount, error) {
	where, args := timeRangeWhere("timestamp", start, end)
	query := `SELECT ip, COUNT(*) FROM logs WHERE ip != ''` + where +
		` GROUP BY ip ORDER BY COUNT(*) DESC LIMIT ?`
	return s.scanBuckets(query, append(args, topN))
}

// CriticalOpenAlertCount counts CRITICAL alerts still awaiting resolution.
func (s *SQLite) CriticalOpenAlertCount() (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM alerts
		 WHERE alert_level = ? AND status IN ('UNHANDLED', 'HANDLING')`,
		string(types.AlertCritical),
	).Scan(&n)
	return n, err
}

func (s *SQLite) scanBuckets(query string, args []interface{}) ([]BucketCount, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []BucketCount
	for rows.Next() {
		var b BucketCount
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
