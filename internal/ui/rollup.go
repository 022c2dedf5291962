package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/store"
)

func (m *Model) rollupView() string {
	r := m.engine.ReadMetricsRollup(m.scope)

	title := "Usage by node"
	first := "Node"
	if r.Scope == store.ByNamespace {
		title = "Usage by namespace"
		first = "Namespace"
	}

	rows := make([][]string, 0, len(r.Rows))
	for _, u := range r.Rows {
		cpuUsed, memUsed := "-", "-"
		if u.UsageAvailable {
			p, ok := u.CPUUsagePercent()
			cpuUsed = withPercent(k8s.FormatMilliCPU(u.CPUUsage), p, ok)
			p, ok = u.MemoryUsagePercent()
			memUsed = withPercent(k8s.FormatBytes(u.MemoryUsage), p, ok)
		}
		cpuReq, cpuOK := u.CPURequestsPercent()
		memReq, memOK := u.MemoryRequestsPercent()
		rows = append(rows, []string{
			u.Name,
			fmt.Sprint(u.PodCount),
			withPercent(k8s.FormatMilliCPU(u.CPURequests), cpuReq, cpuOK),
			cpuUsed,
			withPercent(k8s.FormatBytes(u.MemoryRequests), memReq, memOK),
			memUsed,
		})
	}

	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(m.theme.Border)).
		Headers(first, "Pods", "CPU req", "CPU used", "Mem req", "Mem used").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return m.theme.Table.Header.UnsetBorderStyle().UnsetBorderBottom()
			}
			return m.theme.Table.Cell
		})

	sections := []string{m.theme.Header.Render(title), t.String()}
	if !r.UsageAvailable {
		note := "usage unavailable"
		if r.AbsentReason != nil {
			note += ": " + r.AbsentReason.Error()
		}
		sections = append(sections, m.theme.WarningText(note))
	} else {
		sections = append(sections, m.theme.StatusBar.Render("collected "+k8s.FormatAge(m.now().Sub(r.CollectedAt))+" ago"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func withPercent(value string, pct float64, ok bool) string {
	if !ok {
		return value
	}
	return fmt.Sprintf("%s (%.0f%%)", value, pct)
}
