package store

import (
	"sort"
	"time"

	"github.com/renato0307/kscope/internal/k8s"
)

// RollupScope selects how utilization is grouped
type RollupScope int

const (
	ByNode RollupScope = iota
	ByNamespace
)

// Utilization is the aggregated resource picture of one node or namespace.
// CPU is in millicores and memory in bytes.
type Utilization struct {
	Name     string
	PodCount int

	CPURequests    int64
	MemoryRequests int64
	// Allocatable is only known for nodes
	CPUAllocatable    int64
	MemoryAllocatable int64

	// Usage fields are meaningful only when UsageAvailable is set
	UsageAvailable bool
	CPUUsage       int64
	MemoryUsage    int64
}

func percent(part, whole int64) (float64, bool) {
	if whole <= 0 {
		return 0, false
	}
	return float64(part) * 100 / float64(whole), true
}

// CPUUsagePercent returns usage as a share of allocatable
func (u Utilization) CPUUsagePercent() (float64, bool) {
	if !u.UsageAvailable {
		return 0, false
	}
	return percent(u.CPUUsage, u.CPUAllocatable)
}

// MemoryUsagePercent returns usage as a share of allocatable
func (u Utilization) MemoryUsagePercent() (float64, bool) {
	if !u.UsageAvailable {
		return 0, false
	}
	return percent(u.MemoryUsage, u.MemoryAllocatable)
}

// CPURequestsPercent returns requests as a share of allocatable
func (u Utilization) CPURequestsPercent() (float64, bool) {
	return percent(u.CPURequests, u.CPUAllocatable)
}

// MemoryRequestsPercent returns requests as a share of allocatable
func (u Utilization) MemoryRequestsPercent() (float64, bool) {
	return percent(u.MemoryRequests, u.MemoryAllocatable)
}

// Rollup is the result of ReadMetricsRollup
type Rollup struct {
	Scope RollupScope
	Rows  []Utilization
	// UsageAvailable is false when metrics are absent or stale; rows then
	// carry requests and allocatable only
	UsageAvailable bool
	CollectedAt    time.Time
	// AbsentReason explains missing metrics; informational, not an error
	AbsentReason error
}

// ReadMetricsRollup aggregates the latest metrics sample with the latest pod
// and node collections. It is computed on every call and never blocks writers.
func (s *Store) ReadMetricsRollup(scope RollupScope, now time.Time) Rollup {
	snap := s.current.Load()

	sample := snap.metrics
	if sample != nil && s.metricsStale(sample, now) {
		sample = nil
	}

	r := Rollup{
		Scope:          scope,
		UsageAvailable: sample != nil,
		AbsentReason:   snap.metricsErr,
	}
	if sample != nil {
		r.CollectedAt = sample.CollectedAt
	}

	var pods []k8s.Item
	if e, ok := snap.entries[k8s.KindPod]; ok {
		pods = e.items
	}

	switch scope {
	case ByNode:
		var nodes []k8s.Item
		if e, ok := snap.entries[k8s.KindNode]; ok {
			nodes = e.items
		}
		r.Rows = rollupByNode(nodes, pods, sample)
	case ByNamespace:
		r.Rows = rollupByNamespace(pods, sample)
	}
	return r
}

func (s *Store) metricsStale(sample *k8s.MetricsSample, now time.Time) bool {
	if s.opts.PollInterval <= 0 {
		return false
	}
	limit := time.Duration(s.opts.MetricsStaleFactor) * s.opts.PollInterval
	return now.Sub(sample.CollectedAt) > limit
}

func rollupByNode(nodes, pods []k8s.Item, sample *k8s.MetricsSample) []Utilization {
	rows := make(map[string]*Utilization, len(nodes))
	for _, node := range nodes {
		cpu, mem := k8s.NodeAllocatable(node)
		rows[node.Name] = &Utilization{
			Name:              node.Name,
			CPUAllocatable:    cpu,
			MemoryAllocatable: mem,
		}
	}

	for _, pod := range pods {
		row, ok := rows[k8s.PodNode(pod)]
		if !ok || k8s.PodTerminal(pod) {
			continue
		}
		cpu, mem := k8s.PodRequests(pod)
		row.PodCount++
		row.CPURequests += cpu
		row.MemoryRequests += mem
	}

	if sample != nil {
		for _, row := range rows {
			row.UsageAvailable = true
		}
		for _, usage := range sample.Nodes {
			if row, ok := rows[usage.Name]; ok {
				row.CPUUsage = usage.MilliCPU
				row.MemoryUsage = usage.MemoryBytes
			}
		}
	}
	return sortedRows(rows)
}

func rollupByNamespace(pods []k8s.Item, sample *k8s.MetricsSample) []Utilization {
	rows := map[string]*Utilization{}
	row := func(ns string) *Utilization {
		r, ok := rows[ns]
		if !ok {
			r = &Utilization{Name: ns}
			rows[ns] = r
		}
		return r
	}

	for _, pod := range pods {
		if k8s.PodTerminal(pod) {
			continue
		}
		r := row(pod.Namespace)
		cpu, mem := k8s.PodRequests(pod)
		r.PodCount++
		r.CPURequests += cpu
		r.MemoryRequests += mem
	}

	if sample != nil {
		for _, usage := range sample.Pods {
			r := row(usage.Namespace)
			r.CPUUsage += usage.MilliCPU
			r.MemoryUsage += usage.MemoryBytes
		}
		for _, r := range rows {
			r.UsageAvailable = true
		}
	}
	return sortedRows(rows)
}

func sortedRows(rows map[string]*Utilization) []Utilization {
	out := make([]Utilization, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
