package viz

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// Theme colours the live view: the scene on the canvas, the energy and
// force panels and the run status.
type Theme struct {
	Name string
	// Title starts the gradient of the model name, Scene ends it and
	// draws the bodies, ground grid and trails.
	Title lipgloss.Color
	Scene lipgloss.Color
	// Energy colours the energy chart, Force the force sparkline and
	// values, Loaded the links currently carrying a force.
	Energy lipgloss.Color
	Force  lipgloss.Color
	Loaded lipgloss.Color
	Muted  lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

func newTheme(name string, colors ...string) Theme {
	c := func(i int) lipgloss.Color { return lipgloss.Color(colors[i]) }
	return Theme{
		Name:    name,
		Title:   c(0),
		Scene:   c(1),
		Energy:  c(2),
		Force:   c(3),
		Loaded:  c(4),
		Muted:   c(5),
		Success: c(6),
		Warning: c(7),
		Error:   c(8),
	}
}

var themes = map[string]Theme{
	"blueprint": newTheme("blueprint", "#7fb2ff", "#d8e6ff", "#00d7af", "#ffaf5f", "#ff875f", "#5f7fa8", "#5fd787", "#ffd75f", "#ff5f5f"),
	"workshop":  newTheme("workshop", "#ffaf00", "#e4e4e4", "#87d7ff", "#ff8700", "#ff5f00", "#808080", "#87d75f", "#ffd700", "#d70000"),
	"phosphor":  newTheme("phosphor", "#00ff5f", "#00d75f", "#5fff87", "#afff5f", "#ffff5f", "#005f00", "#87ff87", "#ffff00", "#ff0000"),
	"mono":      newTheme("mono", "#ffffff", "#c6c6c6", "#a8a8a8", "#e4e4e4", "#ffffff", "#6c6c6c", "#d0d0d0", "#bcbcbc", "#ff0000"),
}

// CurrentTheme is the theme of every view.
var CurrentTheme = themes["blueprint"]

// GetTheme returns the named theme, or blueprint for unknown names.
func GetTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes["blueprint"]
}

func SetTheme(name string) { CurrentTheme = GetTheme(name) }

func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextTheme cycles through the themes in name order.
func NextTheme() {
	names := ThemeNames()
	for i, name := range names {
		if name == CurrentTheme.Name {
			SetTheme(names[(i+1)%len(names)])
			return
		}
	}
	SetTheme(names[0])
}
