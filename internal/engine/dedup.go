package engine

import (
	"sync"
	"time"

	"github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/types"
)

// deduplicator serializes the find-then-write step of proposal application
// per (alert type, correlation key). Two concurrent proposals for the same
// key must resolve to one alert record with an accurate trigger count, so
// the check-then-act sequence holds a key-scoped lock.
type deduplicator struct {
	store AlertStore

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is reference-counted so the map entry can be dropped once the
// last holder releases it. Keys follow attacker-controlled IPs and users,
// so released locks must not accumulate.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newDeduplicator(store AlertStore) *deduplicator {
	return &deduplicator{
		store: store,
		locks: make(map[string]*keyLock),
	}
}

func (d *deduplicator) acquire(key string) *keyLock {
	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &keyLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return l
}

func (d *deduplicator) release(key string, l *keyLock) {
	l.mu.Unlock()
	d.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(d.locks, key)
	}
	d.mu.Unlock()
}

// Apply reconciles one proposal against the alert store: merge into a
// matching open alert inside the proposal's window, or create a fresh one.
// It returns the resulting alert and whether it was newly created.
func (d *deduplicator) Apply(p Proposal) (*types.Alert, bool, error) {
	key := string(p.Type) + ":" + p.CorrelationKey()
	l := d.acquire(key)
	defer d.release(key, l)

	existing, err := d.findExisting(p)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := d.merge(existing, p); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	fresh := newAlertFromProposal(p)
	if err := d.store.CreateAlert(fresh); err != nil {
		// The store may have raced with a writer outside this process.
		// Re-check once and fold into whatever exists now.
		existing, ferr := d.findExisting(p)
		if ferr != nil || existing == nil {
			return nil, false, errors.Wrap(errors.ErrMergeFailed, "alert create failed", err)
		}
		if merr := d.merge(existing, p); merr != nil {
			return nil, false, merr
		}
		return existing, false, nil
	}
	return fresh, true, nil
}

func (d *deduplicator) findExisting(p Proposal) (*types.Alert, error) {
	if p.Window <= 0 {
		return nil, nil
	}
	a, err := d.store.FindOpenAlert(p.Type, p.RelatedIP, p.RelatedUser, time.Now().Add(-p.Window))
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "open alert lookup failed", err)
	}
	return a, nil
}

// merge folds a proposal into an existing open alert: bump the trigger
// count, union the evidence log ids, and refresh the description. Level,
// status, and handler fields are left alone.
func (d *deduplicator) merge(a *types.Alert, p Proposal) error {
	a.TriggerCount++
	a.MergeLogIDs(p.LogIDs)
	if p.Description != "" {
		a.Description = p.Description
	}
	a.UpdatedAt = time.Now()

	if err := d.store.UpdateAlert(a); err != nil {
		// One retry: re-read the row and re-apply on top of current state.
		fresh, rerr := d.store.FindOpenAlert(p.Type, p.RelatedIP, p.RelatedUser, time.Now().Add(-p.Window))
		if rerr != nil || fresh == nil {
			return errors.Wrap(errors.ErrMergeFailed, "alert merge failed", err)
		}
		fresh.TriggerCount++
		fresh.MergeLogIDs(p.LogIDs)
		if p.Description != "" {
			fresh.Description = p.Description
		}
		fresh.UpdatedAt = time.Now()
		if err := d.store.UpdateAlert(fresh); err != nil {
			return errors.Wrap(errors.ErrMergeFailed, "alert merge retry failed", err)
		}
		*a = *fresh
	}
	return nil
}

func newAlertFromProposal(p Proposal) *types.Alert {
	now := time.Now()
	return &types.Alert{
		AlertType:     p.Type,
		AlertLevel:    p.Level,
		Title:         p.Title,
		Description:   p.Description,
		RelatedIP:     p.RelatedIP,
		RelatedUser:   p.RelatedUser,
		RelatedLogIDs: append([]int64(nil), p.LogIDs...),
		TriggerCount:  1,
		Status:        types.StatusUnhandled,
		ExtraData:     p.extraJSON(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
