package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/types"
)

const (
	suspiciousWindow = 30 * time.Minute
	suspiciousMinIPs = 3 // strictly more than this many distinct IPs fires
)

// SuspiciousAccessRule flags accounts that log in successfully from many
// distinct IPs within a short window, which usually means a shared or
// compromised credential. It runs on scheduled sweeps only: a single event
// cannot establish the spread.
type SuspiciousAccessRule struct {
	Logs LogSource

	// SuccessPatterns overrides the message heuristics when non-nil.
	SuccessPatterns []string
}

func (r *SuspiciousAccessRule) Name() string { return "suspicious_access" }

func (r *SuspiciousAccessRule) Evaluate(ctx context.Context, trig Trigger) ([]Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !trig.Scheduled() {
		return nil, nil
	}

	patterns := r.SuccessPatterns
	if patterns == nil {
		patterns = DefaultSuccessPatterns
	}

	spreads, err := r.Logs.LoginIPSpread(time.Now().Add(-suspiciousWindow), patterns, suspiciousMinIPs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRuleQuery, "suspicious access scan failed", err)
	}

	proposals := make([]Proposal, 0, len(spreads))
	for _, s := range spreads {
		proposals = append(proposals, Proposal{
			Type:  types.AlertSuspiciousAccess,
			Level: types.AlertHigh,
			Title: fmt.Sprintf("Suspicious access pattern for user %s", s.User),
			Description: fmt.Sprintf("User %s logged in from %d distinct IPs within %d minutes: %s",
				s.User, len(s.IPs), int(suspiciousWindow.Minutes()), strings.Join(s.IPs, ", ")),
			RelatedUser: s.User,
			Window:      suspiciousWindow,
			Extra: map[string]interface{}{
				"ip_count": len(s.IPs),
				"ip_list":  s.IPs,
			},
		})
	}
	return proposals, nil
}
