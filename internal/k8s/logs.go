package k8s

import (
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
)

// LogTarget identifies the container whose output is streamed
type LogTarget struct {
	Namespace string
	Pod       string
	Container string
	Previous  bool
	TailLines int64
}

func (t LogTarget) String() string {
	s := t.Namespace + "/" + t.Pod
	if t.Container != "" {
		s += "/" + t.Container
	}
	if t.Previous {
		s += " (previous)"
	}
	return s
}

// StreamLogs opens a follow stream with timestamps. The caller owns the
// returned body and cancels ctx to stop it.
func (c *Client) StreamLogs(ctx context.Context, target LogTarget) (io.ReadCloser, error) {
	opts := &corev1.PodLogOptions{
		Container:  target.Container,
		Follow:     !target.Previous,
		Timestamps: true,
		Previous:   target.Previous,
	}
	if target.TailLines > 0 {
		tail := target.TailLines
		opts.TailLines = &tail
	}

	stream, err := c.kube.CoreV1().Pods(target.Namespace).GetLogs(target.Pod, opts).Stream(ctx)
	if err != nil {
		return nil, classifyGet(KindPod, fmt.Errorf("open log stream for %s: %w", target, err))
	}
	return stream, nil
}
