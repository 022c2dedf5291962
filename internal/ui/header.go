package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/renato0307/kscope/internal/engine"
	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/store"
)

// Header is the top line: context, namespace, kind and refresh age
type Header struct {
	appName string
	theme   *Theme
	width   int

	conn engine.Connection
	kind store.KindView
	has  bool
}

func NewHeader(appName string, theme *Theme) *Header {
	return &Header{appName: appName, theme: theme}
}

func (h *Header) SetConnection(conn engine.Connection) {
	h.conn = conn
}

// SetKind sets the kind on screen; has is false when nothing is subscribed
func (h *Header) SetKind(kind store.KindView, has bool) {
	h.kind = kind
	h.has = has
}

func (h *Header) SetWidth(width int) {
	h.width = width
}

func (h *Header) View(now time.Time) string {
	headerStyle := h.theme.Header
	timingStyle := lipgloss.NewStyle().
		Foreground(h.theme.Muted).
		Padding(0, 1)

	// "dev • namespace: team-a • Pods • 47 items"
	leftParts := []string{h.appName}
	if h.conn.Context != "" {
		leftParts = append(leftParts, h.conn.Context)
	}
	ns := h.conn.Namespace
	if ns == "" {
		ns = "all"
	}
	leftParts = append(leftParts, fmt.Sprintf("namespace: %s", ns))
	if h.conn.State != engine.Active {
		leftParts = append(leftParts, strings.ToLower(h.conn.State.String()))
	}
	if h.has {
		leftParts = append(leftParts, h.kind.Info.Title, fmt.Sprintf("%d items", len(h.kind.Items)))
	}
	left := headerStyle.Render(strings.Join(leftParts, " • "))

	// "Last refresh: 2s ago"
	var right string
	if h.has && !h.kind.LastRefreshed.IsZero() {
		text := fmt.Sprintf("Last refresh: %s ago", k8s.FormatAge(now.Sub(h.kind.LastRefreshed)))
		if h.kind.Stale {
			right = timingStyle.Foreground(h.theme.Warning).Render(text + " (stale)")
		} else {
			right = timingStyle.Render(text)
		}
	}

	spacing := h.width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacing < 0 {
		spacing = 0
	}
	spacer := lipgloss.NewStyle().
		Width(spacing).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, spacer, right)
}
