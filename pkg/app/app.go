package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hnpf/MTCLI/pkg/app/screens"
	"github.com/hnpf/MTCLI/pkg/data"
)

// App is the full screen picker: tracked library, catalog search and title
// details. Reading happens outside of it, in the terminal reader.
type App struct {
	deps screens.Deps
}

func NewApp(deps screens.Deps) *App {
	return &App{deps: deps}
}

// Run shows the picker until the user quits or picks a title to read. It
// returns the picked manga, or nil when the user quit.
func (a *App) Run(ctx context.Context) (*data.Manga, error) {
	model := screens.NewRootScreen(ctx, a.deps)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	root, ok := final.(*screens.RootScreen)
	if !ok {
		return nil, nil
	}
	return root.Selected(), nil
}
