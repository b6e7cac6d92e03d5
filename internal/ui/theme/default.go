package theme

import "github.com/charmbracelet/lipgloss"

// DefaultTheme returns the default dark theme
func DefaultTheme() Theme {
	return Theme{
		Name: "default",

		Foreground: lipgloss.Color("252"),
		Border:     lipgloss.Color("240"),

		// Status colors
		Success: lipgloss.Color("42"),
		Warning: lipgloss.Color("220"),
		Error:   lipgloss.Color("196"),
		Info:    lipgloss.Color("75"),

		// Table colors
		TableHeader: lipgloss.Color("62"),
		Null:        lipgloss.Color("244"),
		Redacted:    lipgloss.Color("180"),
		Edited:      lipgloss.Color("220"),
	}
}
