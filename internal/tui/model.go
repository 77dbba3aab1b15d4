package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rag-memory/internal/chat"
	"rag-memory/internal/domain"
)

// Responder is the TUI-facing subset of the dialogue orchestrator.
type Responder interface {
	Respond(ctx context.Context, sess *domain.ChatSession, utterance string, profile chat.Profile) (*chat.Answer, error)
}

type answerMsg struct {
	question string
	session  *domain.ChatSession
	answer   *chat.Answer
	err      error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx         context.Context
	responder   Responder
	session     *domain.ChatSession
	profile     chat.Profile
	input       textinput.Model
	viewport    viewport.Model
	status      string
	busy        bool
	showContext bool
	lastQuery   string
	lastContext string
	ready       bool
}

// New creates a chat screen bound to sess.
func New(ctx context.Context, responder Responder, sess *domain.ChatSession, profile chat.Profile) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your memory and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:       ctx,
		responder: responder,
		session:   sess,
		profile:   profile,
		input:     ti,
		viewport:  vp,
		status:    "Ctrl+O toggles retrieved context. Ctrl+C quits.",
	}
}

// Session returns the session as last updated by the model.
func (m Model) Session() *domain.ChatSession { return m.session }

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// ask runs one turn off the UI goroutine on a copy of the session, so View
// never reads history while Respond appends to it.
func (m Model) ask(q string) tea.Cmd {
	sess := *m.session
	sess.History = append([]domain.Turn(nil), m.session.History...)
	return func() tea.Msg {
		ans, err := m.responder.Respond(m.ctx, &sess, q, m.profile)
		return answerMsg{question: q, session: &sess, answer: ans, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+session, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		m.lastQuery = msg.question
		switch {
		case msg.answer == nil:
			m.status = "Error: " + msg.err.Error()
		case msg.err != nil:
			m.session = msg.session
			m.lastContext = msg.answer.ContextUsed
			m.status = "Answered, but the session was not saved: " + msg.err.Error()
		default:
			m.session = msg.session
			m.lastContext = msg.answer.ContextUsed
			m.status = fmt.Sprintf("Answered at %s", msg.answer.Timestamp.Format("15:04:05"))
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+o":
			m.showContext = !m.showContext
			m.refresh()
			return m, nil
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.SetValue("")
			m.status = "Thinking..."
			return m, m.ask(q)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Memory")
	info := m.session.Name
	if p := m.session.ProjectName(); p != "" {
		info += "  project=" + p
	}
	if m.profile != chat.ProfileNone {
		info += "  profile=" + string(m.profile)
	}
	sub := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(info)
	body := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + sub + "\n" + body + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	if m.showContext {
		m.viewport.SetContent(m.renderContext())
		return
	}
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) renderTranscript() string {
	if len(m.session.History) == 0 {
		return "No messages yet."
	}
	parts := make([]string, 0, len(m.session.History))
	for _, t := range m.session.History {
		who := userStyle.Render("You")
		if t.Role == domain.RoleAssistant {
			who = assistantStyle.Render("Assistant")
		}
		parts = append(parts, who+"\n"+wrap(t.Content, m.viewport.Width-4))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderContext() string {
	if m.lastContext == "" {
		return "No context retrieved yet."
	}
	blocks := strings.Split(m.lastContext, "\n\n")
	for i, b := range blocks {
		head, content, ok := strings.Cut(b, "\nCONTENT: ")
		if !ok {
			continue
		}
		blocks[i] = head + "\n" + highlightBestSentence(content, m.lastQuery)
	}
	return "Context for " + fmt.Sprintf("%q", m.lastQuery) + "\n\n" + strings.Join(blocks, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
