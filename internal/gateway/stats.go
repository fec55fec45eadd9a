package gateway

import (
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/storage"
	"github.com/logwarden/logwarden/internal/types"
)

// Statistics endpoints backing the dashboard: volume trends, level and
// source breakdowns, top talkers, and a combined summary.

type timeSeriesResponse struct {
	Data      []types.TimeBucket `json:"data"`
	Total     int                `json:"total"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Interval  string             `json:"interval"`
}

type levelCount struct {
	Level      string  `json:"level"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type sourceCount struct {
	Source     string  `json:"source"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type ipCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// parseInterval accepts the two supported bucket sizes, defaulting when
// the parameter is absent.
func parseInterval(r *http.Request, def string) (string, bool) {
	iv := r.URL.Query().Get("interval")
	if iv == "" {
		return def, true
	}
	if iv != "hour" && iv != "day" {
		return "", false
	}
	return iv, true
}

// parseStatsRange reads start/end, filling the given default span when the
// caller leaves them out.
func parseStatsRange(r *http.Request, span time.Duration) (time.Time, time.Time, error) {
	start, err := parseQueryTime(r, "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseQueryTime(r, "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e := time.Now()
	if end != nil {
		e = *end
	}
	s := e.Add(-span)
	if start != nil {
		s = *start
	}
	return s, e, nil
}

func clampTopN(r *http.Request) int {
	n := parseQueryInt(r, "top_n", 10)
	if n < 1 {
		n = 1
	}
	if n > 50 {
		n = 50
	}
	return n
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}

func (s *Server) handleLogsByTime(w http.ResponseWriter, r *http.Request) {
	interval, ok := parseInterval(r, "hour")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "interval must be hour or day")
		return
	}
	start, end, err := parseStatsRange(r, 24*time.Hour)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start and end must be RFC 3339")
		return
	}

	buckets, err := s.store.CountLogsByTime(start, end, interval)
	if err != nil {
		writeAppError(w, err)
		return
	}
	total, err := s.store.CountLogs(&start, &end)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeAPISuccess(w, timeSeriesResponse{
		Data:      buckets,
		Total:     total,
		StartTime: start,
		EndTime:   end,
		Interval:  interval,
	})
}

func (s *Server) handleLogsByLevel(w http.ResponseWriter, r *http.Request) {
	start, err := parseQueryTime(r, "start")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start must be RFC 3339")
		return
	}
	end, err := parseQueryTime(r, "end")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "end must be RFC 3339")
		return
	}

	buckets, err := s.store.CountLogsByLevel(start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	total := 0
	for _, b := range buckets {
		total += b.Count
	}

	data := make([]levelCount, 0, len(buckets))
	for _, b := range buckets {
		data = append(data, levelCount{
			Level:      b.Key,
			Count:      b.Count,
			Percentage: percentage(b.Count, total),
		})
	}
	writeAPISuccess(w, map[string]interface{}{"data": data, "total": total})
}

func (s *Server) handleLogsBySource(w http.ResponseWriter, r *http.Request) {
	start, err := parseQueryTime(r, "start")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start must be RFC 3339")
		return
	}
	end, err := parseQueryTime(r, "end")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "end must be RFC 3339")
		return
	}

	buckets, err := s.store.CountLogsBySource(start, end, clampTopN(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	total, err := s.store.CountLogs(start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}

	data := make([]sourceCount, 0, len(buckets))
	for _, b := range buckets {
		data = append(data, sourceCount{
			Source:     b.Key,
			Count:      b.Count,
			Percentage: percentage(b.Count, total),
		})
	}
	writeAPISuccess(w, map[string]interface{}{"data": data, "total": total})
}

func (s *Server) handleTopIPs(w http.ResponseWriter, r *http.Request) {
	start, err := parseQueryTime(r, "start")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start must be RFC 3339")
		return
	}
	end, err := parseQueryTime(r, "end")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "end must be RFC 3339")
		return
	}

	buckets, err := s.store.TopLogIPs(start, end, clampTopN(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	data := make([]ipCount, 0, len(buckets))
	for _, b := range buckets {
		data = append(data, ipCount{IP: b.Key, Count: b.Count})
	}
	writeAPISuccess(w, map[string]interface{}{"data": data})
}

func (s *Server) handleAlertsTrend(w http.ResponseWriter, r *http.Request) {
	interval, ok := parseInterval(r, "day")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "interval must be hour or day")
		return
	}
	start, end, err := parseStatsRange(r, 7*24*time.Hour)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start and end must be RFC 3339")
		return
	}

	buckets, err := s.store.CountAlertsByTime(start, end, interval)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAPISuccess(w, map[string]interface{}{"data": buckets})
}

type dashboardLogs struct {
	Total       int                `json:"total"`
	Today       int                `json:"today"`
	RecentTrend []types.TimeBucket `json:"recent_trend"`
	ByLevel     map[string]int     `json:"by_level"`
}

type dashboardAlerts struct {
	Total     int `json:"total"`
	Unhandled int `json:"unhandled"`
	Critical  int `json:"critical"`
}

type dashboardResponse struct {
	Logs      dashboardLogs   `json:"logs"`
	Alerts    dashboardAlerts `json:"alerts"`
	Timestamp time.Time       `json:"timestamp"`
}

// handleDashboard assembles the summary panel in one request, fanning the
// independent aggregations out in parallel.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.Add(-7 * 24 * time.Hour)

	resp := dashboardResponse{Timestamp: now}
	var byLevel []storage.BucketCount
	var byStatus map[string]int

	g, _ := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		resp.Logs.Total, err = s.store.LogCount()
		return err
	})
	g.Go(func() error {
		var err error
		resp.Logs.Today, err = s.store.CountLogs(&todayStart, nil)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Logs.RecentTrend, err = s.store.CountLogsByTime(weekAgo, now, "day")
		return err
	})
	g.Go(func() error {
		var err error
		byLevel, err = s.store.CountLogsByLevel(&todayStart, nil)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Alerts.Total, err = s.store.CountAlerts(nil, nil)
		return err
	})
	g.Go(func() error {
		var err error
		byStatus, err = s.store.CountAlertsByStatus(nil, nil)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Alerts.Critical, err = s.store.CriticalOpenAlertCount()
		return err
	})
	if err := g.Wait(); err != nil {
		writeAppError(w, err)
		return
	}

	resp.Logs.ByLevel = make(map[string]int, len(byLevel))
	for _, b := range byLevel {
		resp.Logs.ByLevel[b.Key] = b.Count
	}
	resp.Alerts.Unhandled = byStatus[string(types.StatusUnhandled)]

	writeAPISuccess(w, resp)
}
