// Package tui is a terminal browser for the ranked feed. Key presses are sent to
// the action dispatcher, so browsing trains the same preferences as the API.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"curator/internal/core"
	"curator/internal/services"
)

// Dispatcher applies user actions
type Dispatcher interface {
	Dispatch(ctx context.Context, req services.Request) (services.Response, error)
}

// statusMsg reports the outcome of a dispatched action.
type statusMsg struct {
	text string
	err  error
}

// Model holds the browser state.
type Model struct {
	articles    []core.Article
	dispatcher  Dispatcher
	selectedIdx int
	status      string
	width       int
	height      int
	quitting    bool
}

// NewModel returns a browser over articles. dispatcher may be nil for a
// read-only view.
func NewModel(articles []core.Article, dispatcher Dispatcher) Model {
	return Model{articles: articles, dispatcher: dispatcher, width: 120}
}

// Init is the first command that will be run. We don't need any for now.
func (m Model) Init() tea.Cmd {
	return nil
}

// Selected returns the article under the cursor.
func (m Model) Selected() (core.Article, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.articles) {
		return core.Article{}, false
	}
	return m.articles[m.selectedIdx], true
}

// Update handles messages and updates the model accordingly.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case statusMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = msg.text
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.articles)-1 {
				m.selectedIdx++
			}
		case "enter", "o":
			return m, m.act(services.ActionClick, "Marked as read")
		case "b":
			return m, m.act(services.ActionBlockSite, "")
		case "d":
			return m, m.act(services.ActionDemoteSite, "Source demoted")
		case "t":
			return m, m.act(services.ActionDemoteTopic, "Topic demoted")
		}
	}

	return m, nil
}

// act builds the command dispatching action for the selected article.
func (m Model) act(action, done string) tea.Cmd {
	a, ok := m.Selected()
	if !ok || m.dispatcher == nil {
		return nil
	}

	var payload any
	switch action {
	case services.ActionClick:
		payload = services.ClickPayload{SiteURL: a.SourceID, Topic: a.Topic, ArticleID: a.ID}
	case services.ActionDemoteTopic:
		payload = services.TopicPayload{Topic: a.Topic}
	default:
		payload = services.SitePayload{SiteURL: a.SourceID}
	}

	dispatcher := m.dispatcher
	return func() tea.Msg {
		raw, err := json.Marshal(payload)
		if err != nil {
			return statusMsg{err: err}
		}
		resp, err := dispatcher.Dispatch(context.Background(), services.Request{Action: action, Payload: raw})
		if err != nil {
			return statusMsg{err: err}
		}
		if !resp.Success {
			return statusMsg{err: fmt.Errorf("%s failed: %s", action, resp.Error)}
		}
		if resp.Blocked != nil {
			if *resp.Blocked {
				return statusMsg{text: "Source blocked"}
			}
			return statusMsg{text: "Source unblocked"}
		}
		return statusMsg{text: done}
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Quitting...\n"
	}

	paneWidth := max(m.width/2-5, 20)
	docStyle := lipgloss.NewStyle().Margin(1, 2)
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	headerStyle := lipgloss.NewStyle().Bold(true)
	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	var list strings.Builder
	list.WriteString(headerStyle.Render(fmt.Sprintf("Feed (%d)", len(m.articles))) + "\n\n")
	if len(m.articles) == 0 {
		list.WriteString("No articles loaded.")
	} else {
		for i, a := range m.visible() {
			line := fmt.Sprintf("%5.1f  %s", a.Score, a.Title)
			if i == m.selectedIdx-m.offset() {
				list.WriteString(selectedStyle.Render("> "+line) + "\n")
			} else {
				list.WriteString("  " + line + "\n")
			}
		}
	}

	var detail strings.Builder
	if a, ok := m.Selected(); ok {
		detail.WriteString(headerStyle.Render(a.Title) + "\n")
		detail.WriteString(dimStyle.Render(fmt.Sprintf("%s | %s | %s", a.SourceName, a.Topic, a.PublishedAt.Format("2006-01-02 15:04"))) + "\n\n")
		if a.Summary != "" {
			detail.WriteString(a.Summary + "\n\n")
		}
		if a.Explanation != nil && len(a.Explanation.Why) > 0 {
			detail.WriteString(headerStyle.Render("Why") + "\n")
			for _, why := range a.Explanation.Why {
				detail.WriteString("- " + why + "\n")
			}
			detail.WriteString("\n")
		}
		if n := len(a.SimilarArticles); n > 0 {
			detail.WriteString(dimStyle.Render(fmt.Sprintf("+%d similar articles", n)) + "\n")
		}
		detail.WriteString(dimStyle.Render(a.URL))
	} else {
		detail.WriteString("Nothing selected.")
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(list.String()), detailStyle.Render(detail.String()))

	help := "\n\n[↑/k] Up | [↓/j] Down | [enter] Read | [b] Block site | [d] Demote site | [t] Demote topic | [q] Quit"
	if m.status != "" {
		help = "\n" + m.status + help
	}

	return docStyle.Render(mainContent + help)
}

// offset is the index of the first listed article, keeping the cursor on screen.
func (m Model) offset() int {
	rows := m.listRows()
	if m.selectedIdx < rows {
		return 0
	}
	return m.selectedIdx - rows + 1
}

func (m Model) listRows() int {
	if m.height <= 0 {
		return 20
	}
	return max(m.height-12, 5)
}

func (m Model) visible() []core.Article {
	start := m.offset()
	end := min(start+m.listRows(), len(m.articles))
	return m.articles[start:end]
}

// Run starts the browser and blocks until the user quits.
func Run(articles []core.Article, dispatcher Dispatcher) error {
	p := tea.NewProgram(NewModel(articles, dispatcher), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
