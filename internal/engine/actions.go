package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/logging"
)

// ErrNotConnected is reported by actions that need an active context
var ErrNotConnected = errors.New("no active cluster connection")

// ErrStreamUnsupported is reported when output is requested for a kind that
// has no containers to stream from
var ErrStreamUnsupported = errors.New("output streaming is only available for pods")

// action is one unit of work for the dispatcher
type action interface {
	apply(e *Engine)
}

// actionQueue is an unbounded FIFO. push never blocks.
type actionQueue struct {
	mu     sync.Mutex
	items  []action
	signal chan struct{}
}

func newActionQueue() *actionQueue {
	return &actionQueue{signal: make(chan struct{}, 1)}
}

func (q *actionQueue) push(a action) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *actionQueue) ready() <-chan struct{} {
	return q.signal
}

func (q *actionQueue) take() []action {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// SwitchContext activates the context matching id. An empty id selects the
// kubeconfig current context.
func (e *Engine) SwitchContext(id string) {
	e.queue.push(switchAction{id: id})
}

// Retry re-runs the activation of the current context
func (e *Engine) Retry() {
	e.queue.push(retryAction{})
}

// SetNamespace changes the namespace scope; "" selects all namespaces
func (e *Engine) SetNamespace(namespace string) {
	e.queue.push(namespaceAction{namespace: namespace})
}

// SetGlobFilter sets the name filter applied on read. It never fetches.
func (e *Engine) SetGlobFilter(pattern string) {
	e.queue.push(globAction{pattern: pattern})
}

// FetchDocument requests a describe or YAML document and returns the request
// id to look the outcome up with Document.
func (e *Engine) FetchDocument(kind k8s.ResourceKind, namespace, name string, format k8s.DocumentFormat) string {
	req := e.docs.add(kind, namespace, name, format)
	e.queue.push(documentAction{id: req.ID, kind: kind, namespace: namespace, name: name, format: format})
	return req.ID
}

// StartStream replaces the live stream with the output of a container
func (e *Engine) StartStream(kind k8s.ResourceKind, namespace, name, container string, previous bool) {
	e.queue.push(streamStartAction{
		kind: kind,
		target: k8s.LogTarget{
			Namespace: namespace,
			Pod:       name,
			Container: container,
			Previous:  previous,
			TailLines: e.opts.LogTailLines,
		},
	})
}

// StopStream cancels the live stream
func (e *Engine) StopStream() {
	e.queue.push(streamStopAction{})
}

type switchAction struct {
	id string
}

func (a switchAction) apply(e *Engine) {
	e.mu.RLock()
	kc, kcErr := e.kubeconfig, e.kubeconfigErr
	e.mu.RUnlock()

	if kc == nil {
		e.rejectSwitch(a.id, kcErr)
		return
	}
	name, err := kc.ResolveContext(a.id)
	if err != nil {
		e.rejectSwitch(a.id, err)
		return
	}
	info, _ := kc.Lookup(name)
	e.activate(info)
}

// rejectSwitch records an unresolvable switch without touching the context
func (e *Engine) rejectSwitch(id string, err error) {
	if err == nil {
		err = k8s.ErrNoContextMatch
	}
	err = k8s.NewFetchError(k8s.Connectivity, "", fmt.Errorf("switch to %q: %w", id, err))
	e.log.Warn("context switch rejected", "id", id, "error", err)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn.SwitchErr = err
}

type retryAction struct{}

func (retryAction) apply(e *Engine) {
	e.mu.RLock()
	name := e.conn.Context
	e.mu.RUnlock()

	// nothing was ever activated, start from the initial request
	if name == "" {
		switchAction{id: e.opts.Context}.apply(e)
		return
	}
	switchAction{id: name}.apply(e)
}

// activate runs the switch protocol: stop the old timers and stream, rotate
// the generation with a fresh empty snapshot, then check connectivity in the
// background. Polling restarts once the check succeeds.
func (e *Engine) activate(info k8s.ContextInfo) {
	e.sched.Stop()
	e.streams.SetSource(nil)

	registry := k8s.NewRegistry()

	e.mu.Lock()
	generation := e.conn.Generation + 1
	namespace := e.conn.Namespace
	e.conn = Connection{
		Context:    info.Name,
		Server:     info.Server,
		Namespace:  namespace,
		State:      Connecting,
		Generation: generation,
	}
	e.cluster = nil
	e.registry = registry
	e.store.Reset(generation, namespace, e.subscribed(registry))
	e.mu.Unlock()

	e.log.Info("switching context", "context", info.Name, "generation", generation, "namespace", namespace)

	e.bg.Add(1)
	go e.connect(generation, info.Name)
}

// connect checks connectivity for one generation and reports back through
// the dispatcher
func (e *Engine) connect(generation uint64, name string) {
	defer e.bg.Done()

	timing := e.log.Start("connect")
	result := connectedAction{generation: generation, context: name}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.ConnectTimeout)
	defer cancel()

	cluster, err := e.opts.Connector.Connect(ctx, name)
	if err == nil {
		result.version, err = cluster.Ping(ctx)
	}
	if err != nil {
		if k8s.ClassOf(err) != k8s.Connectivity {
			err = k8s.NewFetchError(k8s.Connectivity, "", err)
		}
		result.err = err
		logging.End(timing, "context", name, "error", err)
		e.queue.push(result)
		return
	}
	result.cluster = cluster

	dctx, dcancel := context.WithTimeout(context.Background(), e.opts.RequestTimeout)
	defer dcancel()
	custom, derr := cluster.DiscoverKinds(dctx)
	if derr != nil {
		e.log.Warn("custom kind discovery incomplete", "context", name, "error", derr)
	}
	result.custom = custom

	logging.End(timing, "context", name, "version", result.version, "customKinds", len(custom))
	e.queue.push(result)
}

type connectedAction struct {
	generation uint64
	context    string
	cluster    k8s.Cluster
	version    string
	custom     []k8s.KindInfo
	err        error
}

func (a connectedAction) apply(e *Engine) {
	e.mu.Lock()
	if a.generation != e.conn.Generation {
		e.mu.Unlock()
		e.log.Debug("dropping connectivity result of retired generation", "context", a.context, "generation", a.generation)
		return
	}
	if a.err != nil {
		e.conn.State = Disconnected
		e.conn.Err = a.err
		e.mu.Unlock()
		e.log.Error("context unreachable", "context", a.context, "error", a.err)
		return
	}

	registry := e.registry
	for _, info := range a.custom {
		registry.RegisterCustom(info)
	}
	e.cluster = a.cluster
	e.conn.State = Active
	e.conn.ServerVersion = a.version
	e.conn.ConnectedAt = time.Now()
	e.mu.Unlock()

	kinds := e.subscribed(registry)
	if e.opts.PollCustomKinds {
		e.store.Register(a.generation, registry.Custom())
	}
	e.sched.Restart(a.cluster, kinds, true)
	e.streams.SetSource(a.cluster)

	e.log.Info("context active", "context", a.context, "version", a.version, "kinds", len(kinds))
}

type namespaceAction struct {
	namespace string
}

// apply moves the scope. During an in-flight switch the new scope only
// affects the context being activated.
func (a namespaceAction) apply(e *Engine) {
	e.mu.Lock()
	if e.conn.Namespace == a.namespace {
		e.mu.Unlock()
		return
	}
	e.conn.Namespace = a.namespace
	state := e.conn.State
	e.store.SetNamespace(a.namespace)
	e.mu.Unlock()

	e.log.Info("namespace changed", "namespace", a.namespace)
	if state == Active {
		e.sched.RefetchNamespaced()
	}
}

type globAction struct {
	pattern string
}

func (a globAction) apply(e *Engine) {
	err := e.store.SetGlob(a.pattern)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.globErr = err
	if err != nil {
		e.log.Warn("invalid glob pattern", "pattern", a.pattern, "error", err)
	}
}

type documentAction struct {
	id        string
	kind      k8s.ResourceKind
	namespace string
	name      string
	format    k8s.DocumentFormat
}

func (a documentAction) apply(e *Engine) {
	e.mu.RLock()
	cluster, registry := e.cluster, e.registry
	e.mu.RUnlock()

	if cluster == nil {
		e.docs.complete(a.id, "", k8s.NewFetchError(k8s.Connectivity, a.kind, ErrNotConnected))
		return
	}
	info, ok := registry.Lookup(a.kind)
	if !ok {
		e.docs.complete(a.id, "", k8s.NewFetchError(k8s.Unavailable, a.kind, fmt.Errorf("unknown kind %q", a.kind)))
		return
	}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.RequestTimeout)
		defer cancel()

		timing := e.log.Start("document")
		body, err := cluster.Document(ctx, info, a.namespace, a.name, a.format)
		logging.End(timing, "kind", a.kind, "name", a.name, "format", a.format, "error", err)
		e.docs.complete(a.id, body, err)
	}()
}

type streamStartAction struct {
	kind   k8s.ResourceKind
	target k8s.LogTarget
}

func (a streamStartAction) apply(e *Engine) {
	if a.kind != k8s.KindPod {
		e.streams.Reject(a.target, ErrStreamUnsupported)
		return
	}
	e.streams.Start(a.target)
}

type streamStopAction struct{}

func (streamStopAction) apply(e *Engine) {
	e.streams.Stop()
}

type reloadKubeconfigAction struct{}

func (reloadKubeconfigAction) apply(e *Engine) {
	e.loadKubeconfig()
	e.log.Info("kubeconfig reloaded")
}
