// Package engine ties the acquisition core together. It owns the active
// context, drives the poll scheduler and the stream manager, and exposes the
// read-model and the fire-and-forget actions the UI uses.
//
// All state changes are applied by a single dispatcher goroutine in
// submission order. Network work (connectivity checks, document fetches,
// polling and streaming) runs on separate goroutines and reports back through
// the dispatcher or the snapshot store, so no action ever blocks its caller.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/logging"
	"github.com/renato0307/kscope/internal/poller"
	"github.com/renato0307/kscope/internal/store"
	"github.com/renato0307/kscope/internal/stream"
)

// ConnState is the lifecycle state of the active context
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Active
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Active:
		return "Active"
	default:
		return "Unknown"
	}
}

// Connection is the read-model view of the active context
type Connection struct {
	Context    string
	Server     string
	Namespace  string
	State      ConnState
	Generation uint64
	// Err is the connectivity failure of the last activation; an explicit
	// Retry is needed to leave it
	Err error
	// SwitchErr is set when a switch request could not be resolved to a
	// context. The current context is left untouched.
	SwitchErr     error
	ServerVersion string
	ConnectedAt   time.Time
}

// Options configures an Engine
type Options struct {
	Connector      k8s.Connector
	KubeconfigPath string
	// Context and Namespace are the initial scope; an empty Context means the
	// kubeconfig current context, an empty Namespace means all namespaces
	Context   string
	Namespace string
	Glob      string

	TickInterval       time.Duration
	PollInterval       time.Duration
	RequestTimeout     time.Duration
	ConnectTimeout     time.Duration
	MetricsStaleFactor int

	PollCustomKinds bool
	LogBufferLines  int
	LogTailLines    int64
	DocumentHistory int

	// Registerer receives the poller metrics; nil keeps them unregistered
	Registerer prometheus.Registerer
}

// Engine is the acquisition-and-cache core
type Engine struct {
	opts    Options
	store   *store.Store
	sched   *poller.Scheduler
	streams *stream.Manager
	docs    *documentHistory
	queue   *actionQueue
	log     *logging.Logger

	// bg tracks connectivity checks and document fetches
	bg sync.WaitGroup

	// mu guards the fields below. They are only written by the dispatcher.
	mu            sync.RWMutex
	conn          Connection
	cluster       k8s.Cluster
	registry      *k8s.Registry
	kubeconfig    *k8s.Kubeconfig
	kubeconfigErr error
	globErr       error
}

// New creates a disconnected engine. The kubeconfig is read once here; a
// missing or broken file is reported through ReadContexts, not returned.
func New(opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 250 * time.Millisecond
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	st := store.New(store.Options{
		PollInterval:       opts.PollInterval,
		MetricsStaleFactor: opts.MetricsStaleFactor,
	})
	sched := poller.New(poller.Config{
		TickInterval:   opts.TickInterval,
		PollInterval:   opts.PollInterval,
		RequestTimeout: opts.RequestTimeout,
	}, st, poller.NewMetrics(opts.Registerer))

	e := &Engine{
		opts:     opts,
		store:    st,
		sched:    sched,
		streams:  stream.NewManager(opts.LogBufferLines),
		docs:     newDocumentHistory(opts.DocumentHistory),
		queue:    newActionQueue(),
		log:      logging.Component("engine"),
		registry: k8s.NewRegistry(),
		conn:     Connection{Namespace: opts.Namespace},
	}
	e.loadKubeconfig()

	if opts.Glob != "" {
		if err := st.SetGlob(opts.Glob); err != nil {
			e.globErr = err
		}
	}
	return e
}

// Run activates the initial context and serves actions until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	e.SwitchContext(e.opts.Context)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.dispatch(gctx)
		return nil
	})
	g.Go(func() error {
		e.sched.Run(gctx)
		return nil
	})
	if e.opts.KubeconfigPath != "" {
		g.Go(func() error {
			err := k8s.WatchKubeconfig(gctx, e.opts.KubeconfigPath, func() {
				e.queue.push(reloadKubeconfigAction{})
			})
			if err != nil {
				e.log.Warn("kubeconfig watch disabled", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	e.shutdown()
	return err
}

// shutdown releases the stream and the polling tasks
func (e *Engine) shutdown() {
	e.sched.Stop()
	e.streams.SetSource(nil)
	e.sched.Wait()
	e.streams.Wait()
	e.bg.Wait()
	e.log.Info("engine stopped")
}

func (e *Engine) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.queue.ready():
			e.drain()
		}
	}
}

// drain applies every queued action in order
func (e *Engine) drain() {
	for _, a := range e.queue.take() {
		a.apply(e)
	}
}

func (e *Engine) loadKubeconfig() {
	path := e.opts.KubeconfigPath
	if path == "" {
		path = k8s.DefaultKubeconfigPath()
	}
	kc, err := k8s.LoadKubeconfig(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.kubeconfigErr = err
		e.log.Warn("failed to load kubeconfig", "path", path, "error", err)
		return
	}
	e.kubeconfig = kc
	e.kubeconfigErr = nil
}

// subscribed returns the kinds polled for the given registry
func (e *Engine) subscribed(registry *k8s.Registry) []k8s.KindInfo {
	kinds := registry.Builtin()
	if e.opts.PollCustomKinds {
		kinds = append(kinds, registry.Custom()...)
	}
	return kinds
}
