package ui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/renato0307/kscope/internal/store"
)

// Theme defines the color scheme and styles of the dashboard
type Theme struct {
	Name string

	Primary lipgloss.AdaptiveColor
	Accent  lipgloss.AdaptiveColor
	Muted   lipgloss.AdaptiveColor
	Error   lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Warning lipgloss.AdaptiveColor
	Border  lipgloss.AdaptiveColor

	Table     TableStyles
	Header    lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	StatusBar lipgloss.Style
}

// TableStyles defines styles for table components
type TableStyles struct {
	Header      lipgloss.Style
	Cell        lipgloss.Style
	SelectedRow lipgloss.Style
}

// ToTableStyles converts Theme.Table to bubbles table.Styles
func (t *Theme) ToTableStyles() table.Styles {
	return table.Styles{
		Header:   t.Table.Header,
		Cell:     t.Table.Cell,
		Selected: t.Table.SelectedRow,
	}
}

// StateStyle colors a kind by its read-model state
func (t *Theme) StateStyle(state store.State) lipgloss.Style {
	switch state {
	case store.Ready:
		return lipgloss.NewStyle().Foreground(t.Success)
	case store.Failed:
		return lipgloss.NewStyle().Foreground(t.Error)
	case store.Unavailable:
		return lipgloss.NewStyle().Foreground(t.Muted)
	default:
		return lipgloss.NewStyle().Foreground(t.Warning)
	}
}

// ErrorText renders an error line
func (t *Theme) ErrorText(s string) string {
	return lipgloss.NewStyle().Foreground(t.Error).Render(s)
}

// WarningText renders a degraded-state line
func (t *Theme) WarningText(s string) string {
	return lipgloss.NewStyle().Foreground(t.Warning).Render(s)
}

// finish derives the component styles from the palette
func (t *Theme) finish(selectedFg, selectedBg lipgloss.Color) *Theme {
	t.Table.Header = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border).
		BorderBottom(true).
		Foreground(t.Primary).
		Bold(true).
		PaddingLeft(1).
		PaddingRight(1)

	t.Table.Cell = lipgloss.NewStyle().
		PaddingLeft(1).
		PaddingRight(1)

	t.Table.SelectedRow = lipgloss.NewStyle().
		Foreground(selectedFg).
		Background(selectedBg).
		Bold(false)

	t.Header = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.Tab = lipgloss.NewStyle().
		Foreground(t.Muted).
		Padding(0, 1)

	t.ActiveTab = lipgloss.NewStyle().
		Foreground(t.Accent).
		Bold(true).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(t.Muted)

	return t
}

// ThemeCharm returns the default Charm theme
func ThemeCharm() *Theme {
	t := &Theme{Name: "charm"}
	t.Primary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	t.Accent = lipgloss.AdaptiveColor{Light: "#F780E2", Dark: "#F780E2"}
	t.Muted = lipgloss.AdaptiveColor{Light: "243", Dark: "243"}
	t.Error = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	t.Success = lipgloss.AdaptiveColor{Light: "#02BA84", Dark: "#02BF87"}
	t.Warning = lipgloss.AdaptiveColor{Light: "#FFAA00", Dark: "#FFAA00"}
	t.Border = lipgloss.AdaptiveColor{Light: "240", Dark: "240"}
	return t.finish(lipgloss.Color("229"), lipgloss.Color("57"))
}

// ThemeDracula returns a Dracula-inspired theme
func ThemeDracula() *Theme {
	t := &Theme{Name: "dracula"}
	t.Primary = lipgloss.AdaptiveColor{Light: "#bd93f9", Dark: "#bd93f9"}
	t.Accent = lipgloss.AdaptiveColor{Light: "#ff79c6", Dark: "#ff79c6"}
	t.Muted = lipgloss.AdaptiveColor{Light: "#6272a4", Dark: "#6272a4"}
	t.Error = lipgloss.AdaptiveColor{Light: "#ff5555", Dark: "#ff5555"}
	t.Success = lipgloss.AdaptiveColor{Light: "#50fa7b", Dark: "#50fa7b"}
	t.Warning = lipgloss.AdaptiveColor{Light: "#f1fa8c", Dark: "#f1fa8c"}
	t.Border = lipgloss.AdaptiveColor{Light: "61", Dark: "61"}
	return t.finish(lipgloss.Color("#282a36"), lipgloss.Color("#bd93f9"))
}

// ThemeNord returns a Nord-inspired theme
func ThemeNord() *Theme {
	t := &Theme{Name: "nord"}
	t.Primary = lipgloss.AdaptiveColor{Light: "#5e81ac", Dark: "#88c0d0"}
	t.Accent = lipgloss.AdaptiveColor{Light: "#b48ead", Dark: "#b48ead"}
	t.Muted = lipgloss.AdaptiveColor{Light: "#4c566a", Dark: "#4c566a"}
	t.Error = lipgloss.AdaptiveColor{Light: "#bf616a", Dark: "#bf616a"}
	t.Success = lipgloss.AdaptiveColor{Light: "#a3be8c", Dark: "#a3be8c"}
	t.Warning = lipgloss.AdaptiveColor{Light: "#ebcb8b", Dark: "#ebcb8b"}
	t.Border = lipgloss.AdaptiveColor{Light: "#d8dee9", Dark: "#3b4252"}
	return t.finish(lipgloss.Color("#2e3440"), lipgloss.Color("#88c0d0"))
}

// GetTheme returns a theme by name, defaulting to Charm
func GetTheme(name string) *Theme {
	switch name {
	case "dracula":
		return ThemeDracula()
	case "nord":
		return ThemeNord()
	default:
		return ThemeCharm()
	}
}

// AvailableThemes returns a list of available theme names
func AvailableThemes() []string {
	return []string{"charm", "dracula", "nord"}
}
