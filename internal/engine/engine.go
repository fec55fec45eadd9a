package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/logwarden/logwarden/internal/types"
)

// AlertHook is invoked after the engine creates or merges an alert.
// created is true for a fresh record. Hooks run synchronously on the
// engine's application goroutine and should hand off long work themselves.
type AlertHook func(a *types.Alert, created bool)

// Engine runs the registered rules against the log store and reconciles
// their proposals into the alert store. Rules evaluate concurrently and
// read-only; proposals are applied one at a time through the per-key
// deduplicator so the merge policy never races with itself.
type Engine struct {
	rules []Rule
	dedup *deduplicator
	log   zerolog.Logger

	sweepEvery time.Duration

	mu    sync.Mutex
	hooks []AlertHook
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSweepInterval sets the period of the scheduled sweep started by Start.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweepEvery = d
		}
	}
}

// New assembles an engine over the given stores with the standard rule set:
// brute force, error log, and suspicious access.
func New(logs LogSource, alerts AlertStore, cfg ConfigSource, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		rules: []Rule{
			&BruteForceRule{Logs: logs, Settings: cfg},
			&ErrorLogRule{Logs: logs, Settings: cfg},
			&SuspiciousAccessRule{Logs: logs},
		},
		dedup:      newDeduplicator(alerts),
		log:        logger.With().Str("component", "engine").Logger(),
		sweepEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewWithRules assembles an engine with an explicit rule set. Used by tests
// and by deployments that disable or extend the standard rules.
func NewWithRules(rules []Rule, alerts AlertStore, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		rules:      rules,
		dedup:      newDeduplicator(alerts),
		log:        logger.With().Str("component", "engine").Logger(),
		sweepEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RuleCount reports how many rules are registered.
func (e *Engine) RuleCount() int {
	return len(e.rules)
}

// OnAlert registers a hook called for every alert the engine creates or
// merges. Safe to call concurrently with Run*.
func (e *Engine) OnAlert(h AlertHook) {
	e.mu.Lock()
	e.hooks = append(e.hooks, h)
	e.mu.Unlock()
}

// RunOnEvent evaluates all rules against a freshly ingested log event and
// returns the alerts created or merged in this invocation. A failing rule
// is logged and skipped; the remaining rules still run and their proposals
// are still applied. The returned error joins every rule and application
// failure.
func (e *Engine) RunOnEvent(ctx context.Context, logID int64) ([]*types.Alert, error) {
	return e.run(ctx, Trigger{LogID: logID})
}

// RunScheduled evaluates all rules as a periodic sweep with no
// originating event.
func (e *Engine) RunScheduled(ctx context.Context) ([]*types.Alert, error) {
	return e.run(ctx, Trigger{})
}

// Start runs scheduled sweeps until ctx is cancelled. One sweep fires
// immediately so a restart does not wait a full interval to catch up.
func (e *Engine) Start(ctx context.Context) {
	e.log.Info().Dur("interval", e.sweepEvery).Msg("scheduled sweep started")

	if _, err := e.RunScheduled(ctx); err != nil {
		e.log.Error().Err(err).Msg("sweep failed")
	}

	ticker := time.NewTicker(e.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("scheduled sweep stopped")
			return
		case <-ticker.C:
			if _, err := e.RunScheduled(ctx); err != nil {
				e.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

func (e *Engine) run(ctx context.Context, trig Trigger) ([]*types.Alert, error) {
	type result struct {
		rule      string
		proposals []Proposal
		err       error
	}

	results := make([]result, len(e.rules))
	var wg sync.WaitGroup
	for i, r := range e.rules {
		wg.Add(1)
		go func(i int, r Rule) {
			defer wg.Done()
			props, err := r.Evaluate(ctx, trig)
			results[i] = result{rule: r.Name(), proposals: props, err: err}
		}(i, r)
	}
	wg.Wait()

	var touched []*types.Alert
	var errs []error
	for _, res := range results {
		if res.err != nil {
			e.log.Error().Err(res.err).Str("rule", res.rule).Msg("rule evaluation failed")
			errs = append(errs, res.err)
			continue
		}
		for _, p := range res.proposals {
			alert, created, err := e.dedup.Apply(p)
			if err != nil {
				e.log.Error().Err(err).Str("rule", res.rule).Msg("alert application failed")
				errs = append(errs, err)
				continue
			}
			if created {
				e.log.Warn().
					Int64("alert_id", alert.ID).
					Str("type", string(alert.AlertType)).
					Str("level", string(alert.AlertLevel)).
					Msg("alert created")
			} else {
				e.log.Info().
					Int64("alert_id", alert.ID).
					Int("trigger_count", alert.TriggerCount).
					Msg("alert merged")
			}
			touched = append(touched, alert)
			e.notify(alert, created)
		}
	}
	return touched, errors.Join(errs...)
}

func (e *Engine) notify(a *types.Alert, created bool) {
	e.mu.Lock()
	hooks := make([]AlertHook, len(e.hooks))
	copy(hooks, e.hooks)
	e.mu.Unlock()
	for _, h := range hooks {
		h(a, created)
	}
}
