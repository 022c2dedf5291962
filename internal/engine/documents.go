package engine

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/renato0307/kscope/internal/k8s"
)

// DocumentStatus is the progress of a document request
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "Pending"
	DocumentReady   DocumentStatus = "Ready"
	DocumentFailed  DocumentStatus = "Failed"
)

// DocumentRequest is one fetchDocument call and its outcome. Failures are
// kept in Err and are never written to the snapshot.
type DocumentRequest struct {
	ID          string
	Kind        k8s.ResourceKind
	Namespace   string
	Name        string
	Format      k8s.DocumentFormat
	Status      DocumentStatus
	Body        string
	Err         error
	RequestedAt time.Time
	CompletedAt time.Time
}

// documentHistory keeps the most recent requests
type documentHistory struct {
	mu      sync.RWMutex
	max     int
	entries map[string]*list.Element
	lru     *list.List // front is newest
}

func newDocumentHistory(max int) *documentHistory {
	if max <= 0 {
		max = 16
	}
	return &documentHistory{
		max:     max,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// add records a new pending request and evicts the oldest over capacity
func (h *documentHistory) add(kind k8s.ResourceKind, namespace, name string, format k8s.DocumentFormat) DocumentRequest {
	req := &DocumentRequest{
		ID:          uuid.New().String(),
		Kind:        kind,
		Namespace:   namespace,
		Name:        name,
		Format:      format,
		Status:      DocumentPending,
		RequestedAt: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[req.ID] = h.lru.PushFront(req)
	for h.lru.Len() > h.max {
		h.evictOldest()
	}
	return *req
}

// Must be called with h.mu held
func (h *documentHistory) evictOldest() {
	back := h.lru.Back()
	if back == nil {
		return
	}
	delete(h.entries, back.Value.(*DocumentRequest).ID)
	h.lru.Remove(back)
}

// complete records the outcome. Evicted requests are ignored.
func (h *documentHistory) complete(id, body string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	el, ok := h.entries[id]
	if !ok {
		return
	}
	req := el.Value.(*DocumentRequest)
	req.CompletedAt = time.Now()
	if err != nil {
		req.Status = DocumentFailed
		req.Err = err
		return
	}
	req.Status = DocumentReady
	req.Body = body
}

func (h *documentHistory) get(id string) (DocumentRequest, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	el, ok := h.entries[id]
	if !ok {
		return DocumentRequest{}, false
	}
	return *el.Value.(*DocumentRequest), true
}

// all returns the requests newest first
func (h *documentHistory) all() []DocumentRequest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DocumentRequest, 0, h.lru.Len())
	for el := h.lru.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*DocumentRequest))
	}
	return out
}
