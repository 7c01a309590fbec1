package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tempo/internal/auth"
	"github.com/desertthunder/tempo/internal/store"
)

// LoginResultMsg carries the terminal outcome of the authorization attempt
// into the update loop.
type LoginResultMsg struct {
	Record *store.TokenRecord
	Err    error
}

// authURLMsg carries the authorize URL so the view can show it for manual use.
type authURLMsg string

// LoginModel renders the interactive view of an authorization attempt: a
// spinner while the browser round-trip is pending, then the outcome.
//
// The coordinator does the actual work in a [tea.Cmd]; the model only watches
// its phase.
type LoginModel struct {
	ctx         context.Context
	coordinator *auth.Coordinator
	spinner     spinner.Model
	authURL     string
	done        bool
	record      *store.TokenRecord
	err         error
}

// NewLoginModel creates the interactive login view around a coordinator.
func NewLoginModel(ctx context.Context, coordinator *auth.Coordinator) LoginModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.ok

	return LoginModel{
		ctx:         ctx,
		coordinator: coordinator,
		spinner:     sp,
	}
}

// Result returns the outcome once the program has finished.
func (m LoginModel) Result() (*store.TokenRecord, error) {
	return m.record, m.err
}

func (m LoginModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startAuth())
}

// startAuth runs the blocking authorization attempt off the update loop.
func (m LoginModel) startAuth() tea.Cmd {
	ctx := m.ctx
	coordinator := m.coordinator
	return func() tea.Msg {
		rec, err := coordinator.Authenticate(ctx)
		return LoginResultMsg{Record: rec, Err: err}
	}
}

func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoginResultMsg:
		m.done = true
		m.record = msg.Record
		m.err = msg.Err
		return m, tea.Quit

	case authURLMsg:
		m.authURL = string(msg)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.done {
				m.err = context.Canceled
			}
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m LoginModel) View() string {
	if m.done {
		if m.err != nil {
			return styles.err.Render("✗ Authorization failed") + "\n" + m.err.Error() + "\n"
		}
		return styles.ok.Render("✓ Authorization successful") + "\n"
	}

	var line string
	switch m.coordinator.Phase() {
	case auth.Resolving:
		line = fmt.Sprintf("%s Exchanging authorization code for tokens...", m.spinner.View())
	default:
		line = fmt.Sprintf("%s Waiting for you to approve access in the browser...", m.spinner.View())
	}

	view := styles.title.Render("Spotify authorization") + "\n" + line + "\n"
	if m.authURL != "" {
		view += styles.help.Render("If nothing opened, visit: "+m.authURL) + "\n"
	}
	view += styles.help.Render("press q to cancel") + "\n"

	return view
}

// SetAuthURL returns a command that surfaces the authorize URL in the view.
func SetAuthURL(url string) tea.Cmd {
	return func() tea.Msg { return authURLMsg(url) }
}
