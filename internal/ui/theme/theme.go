package theme

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors of terminal output
type Theme struct {
	Name string

	Foreground lipgloss.Color
	Border     lipgloss.Color

	// Status colors
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	// Table colors
	TableHeader lipgloss.Color
	Null        lipgloss.Color
	Redacted    lipgloss.Color
	Edited      lipgloss.Color
}

// Names lists the built-in themes
func Names() []string {
	return []string{"default", "catppuccin-mocha"}
}

// GetTheme returns a theme by name, falling back to the default
func GetTheme(name string) Theme {
	switch name {
	case "catppuccin-mocha", "catppuccin":
		return CatppuccinMochaTheme()
	default:
		return DefaultTheme()
	}
}
