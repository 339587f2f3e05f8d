package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/shaman2009/lang-lens/internal/domain"
	"github.com/shaman2009/lang-lens/internal/thread"
)

var chatAssistant string

var ChatCmd = &cobra.Command{
	Use:   "chat [threadID]",
	Short: "Chat with an assistant",
	Long: `Opens an interactive conversation. Without a thread id a new thread is
started; with one, the existing history is loaded including its branches.

Keys: enter send, ctrl+e edit last message, ctrl+r regenerate,
ctrl+p/ctrl+n cycle branches, ctrl+s stop, ctrl+c quit.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		threadID := ""
		if len(args) > 0 {
			threadID = args[0]
		}

		store := prefStore()
		assistantID := chatAssistant
		if assistantID == "" {
			if last, ok := store.LastAssistant(); ok {
				assistantID = last
			} else {
				assistantID = "agent"
			}
		}
		if err := store.SetLastAssistant(assistantID); err != nil {
			fmt.Printf("Warning: could not save assistant preference: %v\n", err)
		}

		if err := runChat(cmd.Context(), threadID, assistantID); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	ChatCmd.Flags().StringVar(&chatAssistant, "assistant", "", "assistant id (default: last used)")
}

var (
	humanStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	branchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	todoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type snapMsg thread.Snapshot

type runDoneMsg struct{ err error }

type chatModel struct {
	ctx    context.Context
	cancel context.CancelFunc

	stream *thread.Stream
	snapCh chan thread.Snapshot
	snap   thread.Snapshot

	vp      viewport.Model
	input   textinput.Model
	spin    spinner.Model
	ready   bool
	editing bool
	err     error
}

func runChat(ctx context.Context, threadID, assistantID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := newClient()
	stream := thread.New(client, threadID, assistantID)

	snapCh := make(chan thread.Snapshot, 64)
	stream.Subscribe(func(snap thread.Snapshot) {
		select {
		case snapCh <- snap:
		default:
			// A newer snapshot will follow; dropping is harmless.
		}
	})

	if err := stream.Attach(ctx); err != nil {
		return fmt.Errorf("failed to load thread: %w", err)
	}

	// Best-effort live refresh for out-of-band changes.
	go func() {
		_ = client.Watch(ctx, stream.ThreadID(), func(domain.WatchEvent) {
			_ = stream.Attach(ctx)
		})
	}()

	input := textinput.New()
	input.Placeholder = "Send a message..."
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := chatModel{
		ctx:    ctx,
		cancel: cancel,
		stream: stream,
		snapCh: snapCh,
		input:  input,
		spin:   spin,
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.waitSnap())
}

func (m chatModel) waitSnap() tea.Cmd {
	return func() tea.Msg {
		return snapMsg(<-m.snapCh)
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-6)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - 6
		}
		m.input.Width = msg.Width - 4
		m.refreshTranscript()

	case snapMsg:
		m.snap = thread.Snapshot(msg)
		m.refreshTranscript()
		cmds = append(cmds, m.waitSnap())

	case runDoneMsg:
		m.err = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "esc":
			if m.editing {
				m.stream.CancelEdit()
				m.editing = false
				m.input.SetValue("")
			}
		case "ctrl+e":
			return m.handleStartEdit()
		case "ctrl+r":
			return m.handleRegenerate()
		case "ctrl+p":
			return m.handleBranch(thread.Previous)
		case "ctrl+n":
			return m.handleBranch(thread.Next)
		case "ctrl+s":
			if m.snap.IsLoading {
				stream := m.stream
				ctx := m.ctx
				return m, func() tea.Msg {
					return runDoneMsg{err: stream.Stop(ctx)}
				}
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m chatModel) handleEnter() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if m.snap.IsLoading {
		return m, nil
	}
	stream, ctx := m.stream, m.ctx

	if m.editing {
		m.editing = false
		m.input.SetValue("")
		stream.SetEditBuffer(text)
		return m, func() tea.Msg {
			return runDoneMsg{err: stream.ConfirmEdit(ctx)}
		}
	}

	if text == "" {
		return m, nil
	}
	m.input.SetValue("")
	return m, func() tea.Msg {
		return runDoneMsg{err: stream.Submit(ctx, text)}
	}
}

func (m chatModel) handleStartEdit() (tea.Model, tea.Cmd) {
	id, ok := lastByRole(m.snap.Messages, domain.RoleHuman)
	if !ok {
		return m, nil
	}
	if err := m.stream.StartEdit(id); err != nil {
		m.err = err
		return m, nil
	}
	buffer, _ := m.stream.EditBuffer()
	m.editing = true
	m.input.SetValue(buffer)
	m.input.CursorEnd()
	return m, nil
}

func (m chatModel) handleRegenerate() (tea.Model, tea.Cmd) {
	id, ok := lastByRole(m.snap.Messages, domain.RoleAssistant)
	if !ok || !m.stream.CanRegenerate(id) {
		return m, nil
	}
	stream, ctx := m.stream, m.ctx
	return m, func() tea.Msg {
		return runDoneMsg{err: stream.Regenerate(ctx, id)}
	}
}

func (m chatModel) handleBranch(dir thread.Direction) (tea.Model, tea.Cmd) {
	id, ok := lastBranched(m.stream, m.snap.Messages)
	if !ok {
		return m, nil
	}
	stream, ctx := m.stream, m.ctx
	return m, func() tea.Msg {
		return runDoneMsg{err: stream.SwitchBranch(ctx, id, dir)}
	}
}

// lastByRole returns the id of the last message with the given role.
func lastByRole(messages []domain.Message, role domain.Role) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i].ID, true
		}
	}
	return "", false
}

// lastBranched returns the id of the last message with sibling branches.
func lastBranched(stream *thread.Stream, messages []domain.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if meta, ok := stream.MetadataOf(messages[i].ID); ok && meta.HasSiblings() {
			return messages[i].ID, true
		}
	}
	return "", false
}

func (m *chatModel) refreshTranscript() {
	if !m.ready {
		return
	}
	m.vp.SetContent(m.transcript())
	m.vp.GotoBottom()
}

func (m *chatModel) transcript() string {
	var b strings.Builder
	for _, msg := range m.snap.Messages {
		if !msg.Renderable() {
			continue
		}
		switch msg.Role {
		case domain.RoleHuman:
			b.WriteString(humanStyle.Render("you ") + m.branchTag(msg.ID) + "\n")
			b.WriteString(msg.Text() + "\n\n")
		case domain.RoleAssistant:
			for _, call := range msg.ToolCalls {
				b.WriteString(toolStyle.Render("⚙ "+call.Name) + "\n")
			}
			if text := msg.Text(); text != "" {
				b.WriteString(agentStyle.Render("agent ") + m.branchTag(msg.ID) + "\n")
				b.WriteString(text + "\n\n")
			}
		}
	}
	return b.String()
}

// branchTag renders "i of N" for messages with an alternate history.
func (m *chatModel) branchTag(messageID string) string {
	meta, ok := m.stream.MetadataOf(messageID)
	if !ok || !meta.HasSiblings() {
		return ""
	}
	i, n := m.stream.BranchPosition(messageID)
	return branchStyle.Render(fmt.Sprintf("‹%d of %d›", i, n))
}

func (m chatModel) View() string {
	if !m.ready {
		return "loading..."
	}

	var footer strings.Builder
	if len(m.snap.Todos) > 0 {
		var parts []string
		for _, t := range m.snap.Todos {
			mark := "·"
			switch t.Status {
			case domain.TodoStatusInProgress:
				mark = "»"
			case domain.TodoStatusCompleted:
				mark = "✓"
			}
			parts = append(parts, fmt.Sprintf("%s %s", mark, t.Content))
		}
		footer.WriteString(todoStyle.Render("todos: "+strings.Join(parts, "  ")) + "\n")
	}
	if m.snap.IsLoading {
		footer.WriteString(m.spin.View() + " thinking... (ctrl+s to stop)\n")
	}
	if m.err != nil {
		footer.WriteString(errStyle.Render(m.err.Error()) + "\n")
	}

	prompt := m.input.View()
	if m.editing {
		prompt = branchStyle.Render("edit: ") + prompt
	}

	help := helpStyle.Render("enter send · ctrl+e edit · ctrl+r regenerate · ctrl+p/n branches · ctrl+c quit")
	return fmt.Sprintf("%s\n%s%s\n%s", m.vp.View(), footer.String(), prompt, help)
}
