// Package poller drives the periodic fetch cycles of the active context.
//
// Every subscribed kind, plus the metrics backend, has its own task with the
// state machine Idle -> Fetching -> (Idle | BackedOff), and Unavailable as a
// terminal state. Tasks advance on a tick clock independent of rendering; a
// task is due every pollTicks ticks. A due tick that finds the task still
// fetching is dropped, never queued. A failure moves the task to BackedOff,
// which swallows the next due tick.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/logging"
	"github.com/renato0307/kscope/internal/store"
)

// State is the scheduling state of one task
type State int

const (
	Idle State = iota
	Fetching
	BackedOff
	Unavailable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Fetching:
		return "Fetching"
	case BackedOff:
		return "BackedOff"
	case Unavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Fetcher is the part of a cluster connection the scheduler polls
type Fetcher interface {
	List(ctx context.Context, info k8s.KindInfo, namespace string) ([]k8s.Item, error)
	Metrics(ctx context.Context, namespace string) (*k8s.MetricsSample, error)
}

// Config holds the scheduler cadence
type Config struct {
	TickInterval   time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// PollTicks returns how many ticks make one poll interval
func (c Config) PollTicks() int {
	if c.TickInterval <= 0 {
		return 1
	}
	n := int(c.PollInterval / c.TickInterval)
	if n < 1 {
		return 1
	}
	return n
}

type task struct {
	info      k8s.KindInfo
	metrics   bool
	state     State
	countdown int
	// rerun asks for an immediate refetch once the running fetch completes
	rerun bool
}

func (t *task) name() string {
	if t.metrics {
		return metricsKind
	}
	return string(t.info.Kind)
}

// Scheduler owns the tasks of the active context
type Scheduler struct {
	cfg     Config
	store   *store.Store
	metrics *Metrics
	log     *logging.Logger

	mu       sync.Mutex
	fetcher  Fetcher
	tasks    map[string]*task
	order    []string
	epoch    uint64
	running  bool
	inflight sync.WaitGroup
}

// New creates a stopped scheduler publishing into st
func New(cfg Config, st *store.Store, m *Metrics) *Scheduler {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Scheduler{
		cfg:     cfg,
		store:   st,
		metrics: m,
		log:     logging.Component("poller"),
		tasks:   map[string]*task{},
	}
}

// Run ticks the scheduler until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Restart replaces all tasks with fresh Idle ones for the given kinds. Every
// task is due on the very next tick. Fetches still running for the previous
// tasks finish on their own and are discarded by the store.
func (s *Scheduler) Restart(fetcher Fetcher, kinds []k8s.KindInfo, pollMetrics bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.fetcher = fetcher
	s.tasks = make(map[string]*task, len(kinds)+1)
	s.order = s.order[:0]
	for _, info := range kinds {
		s.addLocked(&task{info: info, countdown: 1})
	}
	if pollMetrics {
		s.addLocked(&task{metrics: true, countdown: 1})
	}
	s.running = true
}

func (s *Scheduler) addLocked(t *task) {
	s.tasks[t.name()] = t
	s.order = append(s.order, t.name())
}

// Stop suspends all tasks. In-flight fetches complete but change nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.running = false
	s.fetcher = nil
	s.tasks = map[string]*task{}
	s.order = s.order[:0]
}

// Tick advances every task by one tick
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	for _, name := range s.order {
		t := s.tasks[name]
		if t.state == Unavailable {
			continue
		}
		t.countdown--
		if t.countdown > 0 {
			continue
		}
		t.countdown = s.cfg.PollTicks()

		switch t.state {
		case Fetching:
			s.metrics.DroppedTicks.WithLabelValues(name).Inc()
		case BackedOff:
			t.state = Idle
		case Idle:
			s.startLocked(t)
		}
	}
}

// RefetchNamespaced starts an immediate fetch of every namespace-scoped kind
// and of metrics. Kinds already fetching refetch as soon as they finish.
func (s *Scheduler) RefetchNamespaced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	for _, name := range s.order {
		t := s.tasks[name]
		if !t.metrics && !t.info.Namespaced {
			continue
		}
		switch t.state {
		case Fetching:
			t.rerun = true
		case Idle, BackedOff:
			t.state = Idle
			t.countdown = s.cfg.PollTicks()
			s.startLocked(t)
		}
	}
}

// States returns the scheduling state of every task
func (s *Scheduler) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.tasks))
	for name, t := range s.tasks {
		out[name] = t.state
	}
	return out
}

// Wait blocks until every started fetch has completed
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// startLocked launches the fetch of t. The stamp and namespace are captured
// now so a result can be matched against the scope it was issued for.
func (s *Scheduler) startLocked(t *task) {
	t.state = Fetching
	t.rerun = false

	fetcher := s.fetcher
	epoch := s.epoch
	stamp := s.store.Stamp()
	namespace := s.store.Namespace()
	name := t.name()

	s.metrics.FetchAttempts.WithLabelValues(name).Inc()
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		timeout := s.cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		timing := s.log.Start("fetch")
		err := s.fetch(ctx, fetcher, t, stamp, namespace)
		s.metrics.FetchDuration.WithLabelValues(name).Observe(timing.Elapsed().Seconds())
		logging.End(timing, "kind", name, "error", err)

		s.complete(t, epoch, err)
	}()
}

func (s *Scheduler) fetch(ctx context.Context, fetcher Fetcher, t *task, stamp store.Stamp, namespace string) error {
	name := t.name()

	if t.metrics {
		sample, err := fetcher.Metrics(ctx, namespace)
		var applied bool
		if err != nil {
			applied = s.store.MetricsAbsent(stamp, err)
		} else {
			applied = s.store.PublishMetrics(stamp, sample)
		}
		if !applied {
			s.metrics.DroppedResults.WithLabelValues(name).Inc()
		}
		return err
	}

	items, err := fetcher.List(ctx, t.info, namespace)
	var applied bool
	if err != nil {
		applied = s.store.Fail(stamp, t.info, err)
	} else {
		applied = s.store.Publish(stamp, t.info, items, time.Now())
	}
	if !applied {
		s.metrics.DroppedResults.WithLabelValues(name).Inc()
	}
	return err
}

// complete moves t out of Fetching. Tasks retired by Restart or Stop are left
// alone.
func (s *Scheduler) complete(t *task, epoch uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || s.tasks[t.name()] != t {
		return
	}

	switch {
	case err == nil:
		t.state = Idle
	case k8s.ClassOf(err) == k8s.Unavailable && !t.metrics:
		t.state = Unavailable
		t.rerun = false
		s.metrics.FetchFailures.WithLabelValues(t.name(), k8s.Unavailable.String()).Inc()
		s.log.Info("kind unavailable, polling suspended", "kind", t.name(), "error", err)
		return
	default:
		t.state = BackedOff
		s.metrics.FetchFailures.WithLabelValues(t.name(), k8s.ClassOf(err).String()).Inc()
		s.log.Debug("fetch failed, backing off", "kind", t.name(), "error", err)
	}

	if t.rerun {
		t.state = Idle
		s.startLocked(t)
	}
}
