package store

import (
	"time"

	"github.com/renato0307/kscope/internal/k8s"
)

// KindView is what the UI sees for one kind
type KindView struct {
	Info          k8s.KindInfo
	Items         []k8s.Item
	LastRefreshed time.Time
	State         State
	LastError     error
	// Stale is set when the kind has shown data but has not refreshed within
	// two poll intervals
	Stale bool
}

// Read returns the view of one kind with the glob filter applied
func (s *Store) Read(kind k8s.ResourceKind, now time.Time) (KindView, bool) {
	snap := s.current.Load()
	e, ok := snap.entries[kind]
	if !ok {
		return KindView{}, false
	}
	return s.view(e, s.glob.Load(), now), true
}

// ReadAll returns every registered kind in registration order. Each value is
// individually consistent; no cross-kind consistency is implied.
func (s *Store) ReadAll(now time.Time) []KindView {
	snap := s.current.Load()
	filter := s.glob.Load()

	out := make([]KindView, 0, len(snap.order))
	for _, kind := range snap.order {
		out = append(out, s.view(snap.entries[kind], filter, now))
	}
	return out
}

func (s *Store) view(e *entry, filter *globFilter, now time.Time) KindView {
	v := KindView{
		Info:          e.info,
		Items:         filter.apply(e.items),
		LastRefreshed: e.lastRefreshed,
		State:         e.state,
		LastError:     e.lastError,
	}
	if !e.lastRefreshed.IsZero() && s.opts.PollInterval > 0 {
		v.Stale = now.Sub(e.lastRefreshed) > 2*s.opts.PollInterval
	}
	return v
}

// Generation returns the context generation of the snapshot
func (snap *Snapshot) Generation() uint64 {
	return snap.generation
}

// Len returns the number of registered kinds
func (snap *Snapshot) Len() int {
	return len(snap.order)
}
