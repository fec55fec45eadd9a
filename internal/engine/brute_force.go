package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/types"
)

const (
	defaultBruteForceThreshold = 5
	defaultBruteForceWindowMin = 5
)

// BruteForceRule flags source IPs that accumulate repeated failed login
// events inside a sliding window. Threshold and window come from system
// configuration and fall back to defaults when the rows are absent or
// unparseable.
type BruteForceRule struct {
	Logs     LogSource
	Settings ConfigSource

	// FailurePatterns overrides the message heuristics when non-nil.
	FailurePatterns []string
}

func (r *BruteForceRule) Name() string { return "brute_force" }

func (r *BruteForceRule) Evaluate(ctx context.Context, _ Trigger) ([]Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := settings{src: r.Settings}
	threshold := cfg.Int(types.ConfigBruteForceThreshold, defaultBruteForceThreshold)
	windowMin := cfg.Int(types.ConfigBruteForceWindow, defaultBruteForceWindowMin)
	if threshold < 1 {
		threshold = defaultBruteForceThreshold
	}
	if windowMin < 1 {
		windowMin = defaultBruteForceWindowMin
	}
	window := time.Duration(windowMin) * time.Minute

	patterns := r.FailurePatterns
	if patterns == nil {
		patterns = DefaultFailurePatterns
	}

	groups, err := r.Logs.FailedLoginGroups(time.Now().Add(-window), patterns, threshold)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRuleQuery, "brute force scan failed", err)
	}

	proposals := make([]Proposal, 0, len(groups))
	for _, g := range groups {
		level := types.AlertMedium
		if g.Count >= threshold*2 {
			level = types.AlertHigh
		}
		proposals = append(proposals, Proposal{
			Type:  types.AlertBruteForce,
			Level: level,
			Title: fmt.Sprintf("Possible brute force attack from %s", g.IP),
			Description: fmt.Sprintf("%d failed login attempts from %s within %d minutes (threshold %d)",
				g.Count, g.IP, windowMin, threshold),
			RelatedIP: g.IP,
			LogIDs:    g.LogIDs,
			Window:    window,
			Extra: map[string]interface{}{
				"fail_count":          g.Count,
				"time_window_minutes": windowMin,
				"threshold":           threshold,
			},
		})
	}
	return proposals, nil
}
