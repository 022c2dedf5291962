// Package stream manages the single live container output subscription.
//
// At most one handle is live at a time. Starting a stream cancels the
// previous handle before the new one becomes visible. A stream that ends or
// fails moves to a terminal state and is never restarted automatically.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/logging"
)

// Status is the lifecycle state of a stream handle
type Status int

const (
	// Idle means no stream was started
	Idle Status = iota
	Connecting
	Streaming
	// Closed means the stream ended on its own
	Closed
	Failed
	// Cancelled means the stream was stopped or replaced
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no more lines will arrive
func (s Status) Terminal() bool {
	return s == Closed || s == Failed || s == Cancelled
}

// maxLineBytes caps a single log line
const maxLineBytes = 1024 * 1024

// ErrNoSource is reported when a stream starts without an active context
var ErrNoSource = errors.New("no active cluster connection")

// Source opens container output streams
type Source interface {
	StreamLogs(ctx context.Context, target k8s.LogTarget) (io.ReadCloser, error)
}

// State is the read-model view of the stream
type State struct {
	ID      string
	Target  k8s.LogTarget
	Status  Status
	Err     error
	Lines   []Line
	Evicted int
	Started time.Time
}

type handle struct {
	id      string
	target  k8s.LogTarget
	status  Status
	err     error
	buffer  *Buffer
	cancel  context.CancelFunc
	started time.Time
}

// Manager owns the stream handle
type Manager struct {
	maxLines int
	log      *logging.Logger

	mu      sync.Mutex
	source  Source
	current *handle
	wg      sync.WaitGroup
}

// NewManager creates a manager whose buffers keep maxLines lines
func NewManager(maxLines int) *Manager {
	return &Manager{
		maxLines: maxLines,
		log:      logging.Component("stream"),
	}
}

// SetSource cancels the live stream and sets where new streams are opened.
// A nil source disables streaming.
func (m *Manager) SetSource(source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.source = source
}

// Start replaces the live stream with one for target and returns its id
func (m *Manager) Start(target k8s.LogTarget) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelLocked()

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		id:      uuid.New().String(),
		target:  target,
		status:  Connecting,
		buffer:  NewBuffer(m.maxLines),
		cancel:  cancel,
		started: time.Now(),
	}
	m.current = h

	if m.source == nil {
		h.status = Failed
		h.err = ErrNoSource
		cancel()
		return h.id
	}

	m.log.Info("starting stream", "id", h.id, "target", target.String())
	m.wg.Add(1)
	go m.run(ctx, m.source, h)
	return h.id
}

// Reject replaces the live stream with a failed handle for target. It is used
// when a stream cannot be opened for the selected resource at all.
func (m *Manager) Reject(target k8s.LogTarget, err error) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelLocked()
	h := &handle{
		id:      uuid.New().String(),
		target:  target,
		status:  Failed,
		err:     err,
		buffer:  NewBuffer(m.maxLines),
		cancel:  func() {},
		started: time.Now(),
	}
	m.current = h
	return h.id
}

// Stop cancels the live stream. Its lines stay readable until the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
}

func (m *Manager) cancelLocked() {
	h := m.current
	if h == nil || h.status.Terminal() {
		return
	}
	h.cancel()
	h.status = Cancelled
	m.log.Info("stream cancelled", "id", h.id, "target", h.target.String())
}

// State returns the current stream view
func (m *Manager) State() State {
	m.mu.Lock()
	h := m.current
	if h == nil {
		m.mu.Unlock()
		return State{Status: Idle}
	}
	st := State{
		ID:      h.id,
		Target:  h.target,
		Status:  h.status,
		Err:     h.err,
		Started: h.started,
	}
	buffer := h.buffer
	m.mu.Unlock()

	st.Lines = buffer.Lines()
	st.Evicted = buffer.Evicted()
	return st
}

// Wait blocks until every stream goroutine has exited
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, source Source, h *handle) {
	defer m.wg.Done()
	defer h.cancel()

	body, err := source.StreamLogs(ctx, h.target)
	if err != nil {
		m.finish(ctx, h, fmt.Errorf("open stream: %w", err))
		return
	}
	defer body.Close()
	// unblock the reader once the handle is cancelled
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	m.setStatus(h, Streaming)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	count := 0
	for scanner.Scan() {
		h.buffer.Add(Line{Text: scanner.Text(), Received: time.Now()})
		count++
	}
	m.log.Debug("stream ended", "id", h.id, "lines", count)
	m.finish(ctx, h, scanner.Err())
}

func (m *Manager) setStatus(h *handle, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !h.status.Terminal() {
		h.status = status
	}
}

// finish moves h to Closed or Failed unless it was already cancelled
func (m *Manager) finish(ctx context.Context, h *handle, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.status.Terminal() || ctx.Err() != nil {
		return
	}
	if err != nil {
		h.status = Failed
		h.err = err
		m.log.Warn("stream failed", "id", h.id, "target", h.target.String(), "error", err)
		return
	}
	h.status = Closed
}
