// Package themes holds the color schemes for the scan monitor.
package themes

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style for the TUI.
type Theme struct {
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Normal        lipgloss.Style
	Bold          lipgloss.Style
	Code          lipgloss.Style
	RoundedBox    lipgloss.Style
	StatusPending lipgloss.Style
	StatusInfo    lipgloss.Style
	StatusError   lipgloss.Style
	StatusWarning lipgloss.Style
	StatusSuccess lipgloss.Style
	Primary       lipgloss.Color
	Secondary     lipgloss.Color
	Muted         lipgloss.Color
	Border        lipgloss.Color
}

// Default is the default theme.
var Default = newTheme(palette{
	primary:   "#5FA8FF",
	secondary: "#a78bfa",
	success:   "#10b981",
	warning:   "#f59e0b",
	errColor:  "#ef4444",
	info:      "#3b82f6",
	text:      "#fafafa",
	subtle:    "#a3a3a3",
	code:      "#262626",
	border:    "#404040",
	muted:     "#737373",
})

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = newTheme(palette{
	primary:   "#89b4fa",
	secondary: "#f5c2e7",
	success:   "#a6e3a1",
	warning:   "#f9e2af",
	errColor:  "#f38ba8",
	info:      "#89dceb",
	text:      "#cdd6f4",
	subtle:    "#a6adc8",
	code:      "#313244",
	border:    "#45475a",
	muted:     "#6c7086",
})

type palette struct {
	primary, secondary, success, warning, errColor string
	info, text, subtle, code, border, muted        string
}

func newTheme(p palette) Theme {
	status := func(color string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
	}
	return Theme{
		Primary:   lipgloss.Color(p.primary),
		Secondary: lipgloss.Color(p.secondary),
		Muted:     lipgloss.Color(p.muted),
		Border:    lipgloss.Color(p.border),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(p.primary)).
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.subtle)),
		Normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.text)),
		Bold: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(p.text)),
		Code: lipgloss.NewStyle().
			Background(lipgloss.Color(p.code)).
			Foreground(lipgloss.Color(p.text)).
			Padding(0, 1),
		RoundedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.border)).
			Padding(1, 2),

		StatusSuccess: status(p.success),
		StatusWarning: status(p.warning),
		StatusError:   status(p.errColor),
		StatusInfo:    status(p.info),
		StatusPending: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.muted)).
			Italic(true),
	}
}

// GetTheme returns a theme by name.
func GetTheme(name string) Theme {
	switch name {
	case "catppuccin-mocha":
		return CatppuccinMocha
	default:
		return Default
	}
}
