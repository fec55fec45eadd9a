package engine

import (
	"context"
	"fmt"

	"github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/types"
)

const errorLogSnippetLen = 200

// ErrorLogRule raises one alert per ingested ERROR-level event. It only
// reacts to event triggers; sweeps never revisit old errors. The rule can be
// switched off with the alert_error_log_enabled config key.
type ErrorLogRule struct {
	Logs     LogSource
	Settings ConfigSource
}

func (r *ErrorLogRule) Name() string { return "error_log" }

func (r *ErrorLogRule) Evaluate(ctx context.Context, trig Trigger) ([]Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if trig.Scheduled() {
		return nil, nil
	}

	cfg := settings{src: r.Settings}
	if !cfg.Bool(types.ConfigErrorLogEnabled, true) {
		return nil, nil
	}

	ev, err := r.Logs.LogByID(trig.LogID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRuleQuery, "error log lookup failed", err)
	}
	if ev == nil || ev.Level != types.LevelError {
		return nil, nil
	}

	// Truncate on a rune boundary so multi-byte messages stay valid UTF-8.
	snippet := ev.Message
	if runes := []rune(snippet); len(runes) > errorLogSnippetLen {
		snippet = string(runes[:errorLogSnippetLen])
	}

	return []Proposal{{
		Type:        types.AlertErrorLog,
		Level:       types.AlertMedium,
		Title:       fmt.Sprintf("Error log from %s", ev.Source),
		Description: snippet,
		RelatedIP:   ev.IP,
		RelatedUser: ev.User,
		LogIDs:      []int64{ev.ID},
		// Window zero: each ERROR event gets its own alert, never merged.
		Extra: map[string]interface{}{
			"source":    ev.Source,
			"log_level": string(ev.Level),
		},
	}}, nil
}
