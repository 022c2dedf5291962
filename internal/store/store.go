// Package store holds the read-model of the active context: the latest
// successfully fetched collection of every kind plus the latest metrics
// sample.
//
// A Snapshot is immutable once published. Writers build a new Snapshot and
// swap it in with a single atomic store, so readers never take a lock and
// never see a collection from two fetch cycles.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/renato0307/kscope/internal/k8s"
)

// State is the read-model status of one kind
type State int

const (
	// Pending means no fetch has completed since activation
	Pending State = iota
	// Ready means the last fetch succeeded
	Ready
	// Failed means the last fetch failed; items are from the last success
	Failed
	// Unavailable means the cluster does not serve the kind
	Unavailable
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	case Unavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Stamp identifies the context generation and namespace scope a fetch was
// issued under
type Stamp struct {
	Generation uint64
	Scope      uint64
}

// entry is the stored value of one kind. Never mutated after publish.
type entry struct {
	info          k8s.KindInfo
	items         []k8s.Item
	lastRefreshed time.Time
	state         State
	lastError     error
}

// Snapshot is one immutable version of the read-model
type Snapshot struct {
	generation uint64
	scope      uint64
	namespace  string
	entries    map[k8s.ResourceKind]*entry
	order      []k8s.ResourceKind
	metrics    *k8s.MetricsSample
	metricsErr error
}

// Options configures staleness
type Options struct {
	PollInterval time.Duration
	// MetricsStaleFactor is the number of poll intervals after which a metrics
	// sample is excluded from rollups
	MetricsStaleFactor int
}

// Store is the shared cache between fetch workers and the UI
type Store struct {
	opts Options

	// mu serialises writers; readers only Load
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	glob    atomic.Pointer[globFilter]
}

// New creates an empty store at generation 0
func New(opts Options) *Store {
	if opts.MetricsStaleFactor <= 0 {
		opts.MetricsStaleFactor = 3
	}
	s := &Store{opts: opts}
	s.current.Store(&Snapshot{entries: map[k8s.ResourceKind]*entry{}})
	s.glob.Store(&globFilter{})
	return s
}

// Snapshot returns the current snapshot
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Stamp returns the stamp new fetches must carry
func (s *Store) Stamp() Stamp {
	snap := s.current.Load()
	return Stamp{Generation: snap.generation, Scope: snap.scope}
}

// Namespace returns the namespace scope of the current snapshot ("" = all)
func (s *Store) Namespace() string {
	return s.current.Load().namespace
}

// Reset replaces the snapshot with an empty one for a new context generation.
// The given kinds are registered as Pending.
func (s *Store) Reset(generation uint64, namespace string, kinds []k8s.KindInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		generation: generation,
		namespace:  namespace,
		entries:    make(map[k8s.ResourceKind]*entry, len(kinds)),
	}
	for _, info := range kinds {
		snap.entries[info.Kind] = &entry{info: info, state: Pending}
		snap.order = append(snap.order, info.Kind)
	}
	s.current.Store(snap)
}

// Register adds kinds to the current snapshot as Pending. Known kinds are
// left alone.
func (s *Store) Register(generation uint64, kinds []k8s.KindInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	if old.generation != generation {
		return false
	}
	snap := old.clone()
	for _, info := range kinds {
		if _, ok := snap.entries[info.Kind]; ok {
			continue
		}
		snap.entries[info.Kind] = &entry{info: info, state: Pending}
		snap.order = append(snap.order, info.Kind)
	}
	s.current.Store(snap)
	return true
}

// SetNamespace moves the current context to a new namespace scope. Collections
// of namespaced kinds and pod metrics are cleared so data from the old scope
// never shows under the new one. Returns the new stamp.
func (s *Store) SetNamespace(namespace string) Stamp {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load().clone()
	snap.scope++
	snap.namespace = namespace
	for kind, e := range snap.entries {
		if e.info.Namespaced {
			snap.entries[kind] = &entry{info: e.info, state: pendingUnlessUnavailable(e.state)}
		}
	}
	snap.metrics = nil
	snap.metricsErr = nil
	s.current.Store(snap)
	return Stamp{Generation: snap.generation, Scope: snap.scope}
}

func pendingUnlessUnavailable(state State) State {
	if state == Unavailable {
		return Unavailable
	}
	return Pending
}

// accepts reports whether a result issued under stamp may still be applied.
// Cluster-scoped results survive a namespace change.
func (snap *Snapshot) accepts(stamp Stamp, namespaced bool) bool {
	if stamp.Generation != snap.generation {
		return false
	}
	return !namespaced || stamp.Scope == snap.scope
}

// Publish replaces the collection of a kind. Results from an older generation
// or namespace scope are dropped and false is returned.
func (s *Store) Publish(stamp Stamp, info k8s.KindInfo, items []k8s.Item, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	if !old.accepts(stamp, info.Namespaced) {
		return false
	}

	snap := old.clone()
	if _, ok := snap.entries[info.Kind]; !ok {
		snap.order = append(snap.order, info.Kind)
	}
	snap.entries[info.Kind] = &entry{
		info:          info,
		items:         items,
		lastRefreshed: at,
		state:         Ready,
	}
	s.current.Store(snap)
	return true
}

// Fail records a failed fetch. The last good collection is kept.
func (s *Store) Fail(stamp Stamp, info k8s.KindInfo, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	if !old.accepts(stamp, info.Namespaced) {
		return false
	}

	state := Failed
	if k8s.ClassOf(err) == k8s.Unavailable {
		state = Unavailable
	}

	snap := old.clone()
	prev, ok := snap.entries[info.Kind]
	if !ok {
		snap.order = append(snap.order, info.Kind)
		prev = &entry{info: info}
	}
	snap.entries[info.Kind] = &entry{
		info:          info,
		items:         prev.items,
		lastRefreshed: prev.lastRefreshed,
		state:         state,
		lastError:     err,
	}
	s.current.Store(snap)
	return true
}

// PublishMetrics replaces the metrics sample
func (s *Store) PublishMetrics(stamp Stamp, sample *k8s.MetricsSample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	if !old.accepts(stamp, true) {
		return false
	}
	snap := old.clone()
	snap.metrics = sample
	snap.metricsErr = nil
	s.current.Store(snap)
	return true
}

// MetricsAbsent marks metrics as not available. It is not an error state; the
// reason is kept for display.
func (s *Store) MetricsAbsent(stamp Stamp, reason error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	if !old.accepts(stamp, true) {
		return false
	}
	snap := old.clone()
	snap.metrics = nil
	snap.metricsErr = reason
	s.current.Store(snap)
	return true
}

// clone copies the entry map; entries themselves are shared
func (snap *Snapshot) clone() *Snapshot {
	out := *snap
	out.entries = make(map[k8s.ResourceKind]*entry, len(snap.entries))
	for k, v := range snap.entries {
		out.entries[k] = v
	}
	out.order = append([]k8s.ResourceKind(nil), snap.order...)
	return &out
}
