package k8s

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NodeUsage is the measured usage of one node
type NodeUsage struct {
	Name        string
	MilliCPU    int64
	MemoryBytes int64
}

// PodUsage is the measured usage of one pod, summed over its containers
type PodUsage struct {
	Namespace   string
	Name        string
	MilliCPU    int64
	MemoryBytes int64
}

// MetricsSample is one successful read of the metrics backend
type MetricsSample struct {
	Nodes       []NodeUsage
	Pods        []PodUsage
	CollectedAt time.Time
}

// Metrics reads node and pod usage in parallel. Any failure means the metrics
// backend is absent; there is no partial sample.
func (c *Client) Metrics(ctx context.Context, namespace string) (*MetricsSample, error) {
	if c.metrics == nil {
		return nil, NewFetchError(MetricsAbsent, "", fmt.Errorf("metrics client not configured"))
	}

	sample := &MetricsSample{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, err := c.metrics.MetricsV1beta1().NodeMetricses().List(gctx, metav1.ListOptions{})
		if err != nil {
			return fmt.Errorf("node metrics: %w", err)
		}
		nodes := make([]NodeUsage, 0, len(list.Items))
		for _, nm := range list.Items {
			nodes = append(nodes, NodeUsage{
				Name:        nm.Name,
				MilliCPU:    nm.Usage.Cpu().MilliValue(),
				MemoryBytes: nm.Usage.Memory().Value(),
			})
		}
		sample.Nodes = nodes
		return nil
	})

	g.Go(func() error {
		list, err := c.metrics.MetricsV1beta1().PodMetricses(namespace).List(gctx, metav1.ListOptions{})
		if err != nil {
			return fmt.Errorf("pod metrics: %w", err)
		}
		pods := make([]PodUsage, 0, len(list.Items))
		for _, pm := range list.Items {
			usage := PodUsage{Namespace: pm.Namespace, Name: pm.Name}
			for _, container := range pm.Containers {
				usage.MilliCPU += container.Usage.Cpu().MilliValue()
				usage.MemoryBytes += container.Usage.Memory().Value()
			}
			pods = append(pods, usage)
		}
		sample.Pods = pods
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, NewFetchError(MetricsAbsent, "", err)
	}
	sample.CollectedAt = time.Now()
	return sample, nil
}
