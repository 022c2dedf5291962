package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renato0307/kscope/internal/k8s"
)

// pipeSource hands out one pipe per opened stream so tests can write lines
type pipeSource struct {
	mu      sync.Mutex
	writers map[string]*io.PipeWriter
	err     error
}

func newPipeSource() *pipeSource {
	return &pipeSource{
		writers: map[string]*io.PipeWriter{},
	}
}

func (p *pipeSource) StreamLogs(ctx context.Context, target k8s.LogTarget) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	r, w := io.Pipe()
	p.writers[target.Pod] = w
	return r, nil
}

func (p *pipeSource) writer(pod string) *io.PipeWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writers[pod]
}

type staticSource struct {
	body string
}

func (s staticSource) StreamLogs(ctx context.Context, target k8s.LogTarget) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func texts(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Text)
	}
	return out
}

func waitStatus(t *testing.T, m *Manager, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State().Status == want },
		time.Second, 5*time.Millisecond, "waiting for %s", want)
}

func TestIdleWithoutStream(t *testing.T) {
	m := NewManager(10)
	st := m.State()
	assert.Equal(t, Idle, st.Status)
	assert.Empty(t, st.ID)
	assert.Empty(t, st.Lines)
}

func TestStreamUntilClosed(t *testing.T) {
	m := NewManager(10)
	m.SetSource(staticSource{body: "one\ntwo\nthree\n"})

	id := m.Start(k8s.LogTarget{Namespace: "default", Pod: "web"})
	m.Wait()

	st := m.State()
	assert.Equal(t, id, st.ID)
	assert.Equal(t, Closed, st.Status)
	assert.NoError(t, st.Err)
	assert.Equal(t, []string{"one", "two", "three"}, texts(st.Lines))
	assert.Equal(t, "web", st.Target.Pod)
}

func TestStartReplacesLiveStream(t *testing.T) {
	src := newPipeSource()
	m := NewManager(10)
	m.SetSource(src)

	first := m.Start(k8s.LogTarget{Namespace: "default", Pod: "a"})
	waitStatus(t, m, Streaming)
	w := src.writer("a")
	_, err := fmt.Fprintln(w, "from a")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(m.State().Lines) == 1 }, time.Second, 5*time.Millisecond)

	second := m.Start(k8s.LogTarget{Namespace: "default", Pod: "b"})
	assert.NotEqual(t, first, second)

	st := m.State()
	assert.Equal(t, second, st.ID)
	assert.Empty(t, st.Lines, "new handle starts with an empty buffer")

	waitStatus(t, m, Streaming)
	_, err = fmt.Fprintln(src.writer("b"), "from b")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(m.State().Lines) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"from b"}, texts(m.State().Lines))

	// Wait also returns only if cancellation unblocked the reader of "a"
	m.Stop()
	m.Wait()
	assert.Equal(t, Cancelled, m.State().Status)
}

func TestStopKeepsLines(t *testing.T) {
	src := newPipeSource()
	m := NewManager(10)
	m.SetSource(src)

	m.Start(k8s.LogTarget{Namespace: "default", Pod: "a"})
	waitStatus(t, m, Streaming)
	_, err := fmt.Fprintln(src.writer("a"), "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(m.State().Lines) == 1 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Wait()

	st := m.State()
	assert.Equal(t, Cancelled, st.Status)
	assert.NoError(t, st.Err)
	assert.Equal(t, []string{"hello"}, texts(st.Lines))

	// stopping twice is harmless
	m.Stop()
	assert.Equal(t, Cancelled, m.State().Status)
}

func TestStreamReadErrorFails(t *testing.T) {
	src := newPipeSource()
	m := NewManager(10)
	m.SetSource(src)

	m.Start(k8s.LogTarget{Namespace: "default", Pod: "a"})
	waitStatus(t, m, Streaming)
	src.writer("a").CloseWithError(errors.New("connection reset by peer"))
	m.Wait()

	st := m.State()
	assert.Equal(t, Failed, st.Status)
	assert.ErrorContains(t, st.Err, "connection reset by peer")
}

func TestStreamOpenErrorFails(t *testing.T) {
	src := newPipeSource()
	src.err = k8s.NewFetchError(k8s.NotFound, k8s.KindPod, errors.New(`pods "gone" not found`))
	m := NewManager(10)
	m.SetSource(src)

	m.Start(k8s.LogTarget{Namespace: "default", Pod: "gone"})
	m.Wait()

	st := m.State()
	assert.Equal(t, Failed, st.Status)
	assert.Equal(t, k8s.NotFound, k8s.ClassOf(st.Err))
}

func TestStartWithoutSource(t *testing.T) {
	m := NewManager(10)
	m.Start(k8s.LogTarget{Namespace: "default", Pod: "a"})

	st := m.State()
	assert.Equal(t, Failed, st.Status)
	assert.ErrorIs(t, st.Err, ErrNoSource)
}

func TestSetSourceCancelsLiveStream(t *testing.T) {
	src := newPipeSource()
	m := NewManager(10)
	m.SetSource(src)
	m.Start(k8s.LogTarget{Namespace: "default", Pod: "a"})
	waitStatus(t, m, Streaming)

	m.SetSource(nil)
	m.Wait()

	assert.Equal(t, Cancelled, m.State().Status)
}

func TestStreamBufferEvictsOldest(t *testing.T) {
	var body strings.Builder
	for i := range 5 {
		fmt.Fprintf(&body, "line %d\n", i)
	}
	m := NewManager(3)
	m.SetSource(staticSource{body: body.String()})

	m.Start(k8s.LogTarget{Namespace: "default", Pod: "a"})
	m.Wait()

	st := m.State()
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, texts(st.Lines))
	assert.Equal(t, 2, st.Evicted)
}

func TestRejectReplacesLiveStream(t *testing.T) {
	src := newPipeSource()
	m := NewManager(10)
	m.SetSource(src)
	m.Start(k8s.LogTarget{Namespace: "default", Pod: "a"})
	waitStatus(t, m, Streaming)

	id := m.Reject(k8s.LogTarget{Namespace: "default", Pod: "web-7d9"}, errors.New("logs are only available for pods"))
	m.Wait()

	st := m.State()
	assert.Equal(t, id, st.ID)
	assert.Equal(t, Failed, st.Status)
	assert.ErrorContains(t, st.Err, "only available for pods")
}
