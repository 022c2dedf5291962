package engine

import (
	"time"

	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/store"
	"github.com/renato0307/kscope/internal/stream"
)

// None of the read methods block on network I/O.

// ReadAll returns every subscribed kind in registration order
func (e *Engine) ReadAll() []store.KindView {
	return e.store.ReadAll(time.Now())
}

// Read returns one kind
func (e *Engine) Read(kind k8s.ResourceKind) (store.KindView, bool) {
	return e.store.Read(kind, time.Now())
}

// ReadMetricsRollup aggregates utilization by node or namespace
func (e *Engine) ReadMetricsRollup(scope store.RollupScope) store.Rollup {
	return e.store.ReadMetricsRollup(scope, time.Now())
}

// ReadStreamState returns the live or last stream
func (e *Engine) ReadStreamState() stream.State {
	return e.streams.State()
}

// ReadConnection returns the active context
func (e *Engine) ReadConnection() Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conn
}

// ContextView is one kubeconfig context
type ContextView struct {
	k8s.ContextInfo
	Active bool
}

// ReadContexts lists the kubeconfig contexts sorted by name. The error is
// set when the kubeconfig could not be read.
func (e *Engine) ReadContexts() ([]ContextView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.kubeconfig == nil {
		return nil, e.kubeconfigErr
	}
	out := make([]ContextView, 0, len(e.kubeconfig.Contexts))
	for _, c := range e.kubeconfig.Contexts {
		out = append(out, ContextView{ContextInfo: c, Active: c.Name == e.conn.Context})
	}
	return out, e.kubeconfigErr
}

// Kinds returns every kind known for the active context, custom kinds
// included whether polled or not
func (e *Engine) Kinds() []k8s.KindInfo {
	e.mu.RLock()
	registry := e.registry
	e.mu.RUnlock()
	return registry.All()
}

// Document returns a document request by id. Evicted requests are not found.
func (e *Engine) Document(id string) (DocumentRequest, bool) {
	return e.docs.get(id)
}

// Documents returns the kept document requests, newest first
func (e *Engine) Documents() []DocumentRequest {
	return e.docs.all()
}

// ReadFilter returns the glob pattern in effect and the error of the last
// rejected pattern
func (e *Engine) ReadFilter() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Glob(), e.globErr
}
