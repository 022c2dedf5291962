package ui

// Keys holds the dashboard shortcuts
type Keys struct {
	// Prompts
	Filter    string // glob filter on names
	Namespace string // namespace scope
	Context   string // switch context

	// Kind navigation
	NextKind string
	PrevKind string

	// Resource operations
	Describe string
	YAML     string
	Logs     string
	Previous string // logs of the previous container instance

	// Views
	Rollup      string // utilization by node or namespace
	ToggleScope string // node / namespace inside the rollup
	Follow      string // pin the log view to the newest line

	// Global
	Retry string
	Back  string
	Quit  string
}

// DefaultKeys returns the k9s-aligned shortcuts
func DefaultKeys() *Keys {
	return &Keys{
		Filter:    "/",
		Namespace: "n",
		Context:   "c",

		NextKind: "tab",
		PrevKind: "shift+tab",

		Describe: "d",
		YAML:     "y",
		Logs:     "l",
		Previous: "p",

		Rollup:      "u",
		ToggleScope: "tab",
		Follow:      "f",

		Retry: "r",
		Back:  "esc",
		Quit:  "q",
	}
}
