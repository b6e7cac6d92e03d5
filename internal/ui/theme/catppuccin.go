package theme

import "github.com/charmbracelet/lipgloss"

// CatppuccinMochaTheme returns the Catppuccin Mocha theme
// Based on: https://github.com/catppuccin/catppuccin
func CatppuccinMochaTheme() Theme {
	return Theme{
		Name: "catppuccin-mocha",

		Foreground: lipgloss.Color("#cdd6f4"), // Text
		Border:     lipgloss.Color("#45475a"), // Surface1

		// Status colors
		Success: lipgloss.Color("#a6e3a1"), // Green
		Warning: lipgloss.Color("#f9e2af"), // Yellow
		Error:   lipgloss.Color("#f38ba8"), // Red
		Info:    lipgloss.Color("#89dceb"), // Sky

		// Table colors
		TableHeader: lipgloss.Color("#89b4fa"), // Blue
		Null:        lipgloss.Color("#6c7086"), // Overlay0
		Redacted:    lipgloss.Color("#fab387"), // Peach
		Edited:      lipgloss.Color("#f9e2af"), // Yellow
	}
}
