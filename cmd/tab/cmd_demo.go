// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/pkg/ux"
	"github.com/AleutianAI/AleutianTab/services/llm"
	"github.com/AleutianAI/AleutianTab/services/tab"
	"github.com/AleutianAI/AleutianTab/services/tab/session"
)

// =============================================================================
// Messages
// =============================================================================

// suggestionMsg reports that the session offered a fresh suggestion.
type suggestionMsg struct {
	filePath string
	line     int
	char     int
}

// fetchIdleMsg clears the fetching indicator once an edit's debounce
// window has plausibly come and gone without a suggestion.
type fetchIdleMsg struct {
	seq int
}

// =============================================================================
// Model
// =============================================================================

// demoModel is the bubbletea model for the interactive editor demo.
//
// # Thread Safety
//
// The model runs single threaded inside the bubbletea event loop. The
// session's OnSuggestion callback crosses goroutines via the notify
// channel, never by touching model state.
type demoModel struct {
	sess     *session.Session
	notify   chan suggestionMsg
	filePath string
	model    string

	// Buffer state. char is a rune offset into lines[line].
	lines []string
	line  int
	char  int

	// ghost is the untyped remainder currently displayed at the cursor.
	ghost    string
	fetching bool
	editSeq  int

	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
	width    int
	height   int

	shown    int
	accepted int
	quitting bool
}

func newDemoModel(sess *session.Session, notify chan suggestionMsg, filePath, model string) demoModel {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(ux.ColorTealPrimary)),
	)
	return demoModel{
		sess:     sess,
		notify:   notify,
		filePath: filePath,
		model:    model,
		spinner:  sp,
		lines:    []string{"def add(a, b):", "    "},
		line:     1,
		char:     4,
	}
}

// listenSuggestions relays one OnSuggestion notification into the
// bubbletea loop. Update re-issues it after every delivery.
func listenSuggestions(ch <-chan suggestionMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// idleAfter schedules the fetching indicator to clear if no suggestion
// lands for this edit.
func idleAfter(seq int) tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return fetchIdleMsg{seq: seq}
	})
}

// Init implements tea.Model.
func (m demoModel) Init() tea.Cmd {
	return tea.Batch(listenSuggestions(m.notify), m.spinner.Tick)
}

// Update implements tea.Model.
func (m demoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		viewportHeight := m.height - headerHeight - footerHeight

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.syncViewport()
		return m, nil

	case suggestionMsg:
		m.fetching = false
		if ghost, ok := m.sess.Lookup(m.line, m.char, m.currentLine()); ok && ghost != "" {
			if ghost != m.ghost {
				m.shown++
			}
			m.ghost = ghost
		}
		m.syncViewport()
		return m, listenSuggestions(m.notify)

	case fetchIdleMsg:
		if msg.seq == m.editSeq {
			m.fetching = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m demoModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.ghost = ""
		m.syncViewport()
		return m, nil

	case "tab":
		if m.ghost == "" {
			// A plain tab is just indentation.
			return m.typeText("    ")
		}
		return m.acceptGhost()

	case "enter":
		return m.typeText("\n")

	case "backspace":
		m.deleteRune()
		cmd := m.afterEdit()
		return m, cmd

	case "up", "down", "left", "right":
		m.moveCursor(msg.String())
		m.sess.HandleNavigate(m.filePath, m.line, m.char)
		m.refreshGhost()
		m.syncViewport()
		return m, nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		return m.typeText(string(msg.Runes))
	case tea.KeySpace:
		return m.typeText(" ")
	}
	return m, nil
}

// typeText reports the insert to the session, applies it to the local
// buffer, and restarts the fetch cycle. The change report goes first,
// at the pre-insert cursor, which is where the feedback classifier
// expects inserted text to be anchored.
func (m demoModel) typeText(text string) (tea.Model, tea.Cmd) {
	m.sess.HandleDocumentChange(session.Change{
		FilePath:  m.filePath,
		Line:      m.line,
		Character: m.char,
		Text:      text,
	})
	m.insertText(text)
	cmd := m.afterEdit()
	return m, cmd
}

// acceptGhost inserts the displayed remainder. Reporting the insert
// exactly like a typed change lets the session classify it as an
// acceptance on its own.
func (m demoModel) acceptGhost() (tea.Model, tea.Cmd) {
	ghost := m.ghost
	m.ghost = ""
	m.accepted++
	return m.typeText(ghost)
}

// afterEdit is the common tail of every buffer mutation.
func (m *demoModel) afterEdit() tea.Cmd {
	m.editSeq++
	m.fetching = true
	m.sess.HandleEdit(m.line, m.char, m.content())
	m.refreshGhost()
	m.syncViewport()
	return idleAfter(m.editSeq)
}

func (m *demoModel) refreshGhost() {
	if ghost, ok := m.sess.Lookup(m.line, m.char, m.currentLine()); ok {
		m.ghost = ghost
	} else {
		m.ghost = ""
	}
}

// =============================================================================
// Buffer Operations
// =============================================================================

func (m demoModel) currentLine() string {
	return m.lines[m.line]
}

func (m demoModel) content() string {
	return strings.Join(m.lines, "\n")
}

// insertText splices text, which may span lines, at the cursor and
// moves the cursor to the end of the insert.
func (m *demoModel) insertText(text string) {
	rs := []rune(m.lines[m.line])
	head := string(rs[:m.char])
	tail := string(rs[m.char:])

	parts := strings.Split(text, "\n")
	if len(parts) == 1 {
		m.lines[m.line] = head + text + tail
		m.char += utf8.RuneCountInString(text)
		return
	}

	spliced := make([]string, 0, len(m.lines)+len(parts)-1)
	spliced = append(spliced, m.lines[:m.line]...)
	spliced = append(spliced, head+parts[0])
	spliced = append(spliced, parts[1:len(parts)-1]...)
	last := parts[len(parts)-1]
	spliced = append(spliced, last+tail)
	spliced = append(spliced, m.lines[m.line+1:]...)

	m.lines = spliced
	m.line += len(parts) - 1
	m.char = utf8.RuneCountInString(last)
}

// deleteRune removes the rune before the cursor, joining lines when
// the cursor sits at a line start.
func (m *demoModel) deleteRune() {
	if m.char > 0 {
		rs := []rune(m.lines[m.line])
		m.lines[m.line] = string(rs[:m.char-1]) + string(rs[m.char:])
		m.char--
		return
	}
	if m.line == 0 {
		return
	}
	prev := m.lines[m.line-1]
	m.char = utf8.RuneCountInString(prev)
	m.lines[m.line-1] = prev + m.lines[m.line]
	m.lines = append(m.lines[:m.line], m.lines[m.line+1:]...)
	m.line--
}

func (m *demoModel) moveCursor(dir string) {
	switch dir {
	case "up":
		if m.line > 0 {
			m.line--
		}
	case "down":
		if m.line < len(m.lines)-1 {
			m.line++
		}
	case "left":
		if m.char > 0 {
			m.char--
		}
	case "right":
		if m.char < utf8.RuneCountInString(m.currentLine()) {
			m.char++
		}
	}
	if max := utf8.RuneCountInString(m.currentLine()); m.char > max {
		m.char = max
	}
}

// =============================================================================
// View
// =============================================================================

// View implements tea.Model.
func (m demoModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m demoModel) renderHeader() string {
	title := demoTitleStyle.Render("ALEUTIAN TAB DEMO")
	info := demoMutedStyle.Render(fmt.Sprintf("  %s · model %s", m.filePath, m.model))
	return title + info + "\n"
}

func (m demoModel) renderFooter() string {
	stats := fmt.Sprintf("%d shown · %d accepted", m.shown, m.accepted)
	if m.fetching {
		stats += " · " + m.spinner.View() + "fetching"
	}
	keys := "Tab accept · Esc dismiss · Ctrl+C quit"
	return demoMutedStyle.Render(stats) + "\n" + demoMutedStyle.Render(keys)
}

// syncViewport re-renders the buffer into the viewport and keeps the
// cursor line visible.
func (m *demoModel) syncViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderBuffer())

	if m.line < m.viewport.YOffset {
		m.viewport.SetYOffset(m.line)
	} else if m.line >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.line - m.viewport.Height + 1)
	}
}

// renderBuffer draws the lines with a block cursor and the ghost
// remainder inline at the cursor. Ghost lines past the first render
// below the cursor line without line numbers.
func (m demoModel) renderBuffer() string {
	var b strings.Builder
	for i, text := range m.lines {
		b.WriteString(demoLineNumStyle.Render(fmt.Sprintf("%3d ", i+1)))
		if i != m.line {
			b.WriteString(text)
			b.WriteString("\n")
			continue
		}

		rs := []rune(text)
		head := string(rs[:m.char])
		tail := string(rs[m.char:])
		b.WriteString(head)

		ghostLines := strings.Split(m.ghost, "\n")
		if m.ghost != "" {
			first := []rune(ghostLines[0])
			if len(first) > 0 {
				b.WriteString(demoCursorStyle.Render(string(first[0])))
				b.WriteString(demoGhostStyle.Render(string(first[1:])))
			} else {
				b.WriteString(demoCursorStyle.Render(" "))
			}
		} else if tail != "" {
			trs := []rune(tail)
			b.WriteString(demoCursorStyle.Render(string(trs[0])))
			tail = string(trs[1:])
		} else {
			b.WriteString(demoCursorStyle.Render(" "))
		}
		b.WriteString(tail)
		b.WriteString("\n")

		for _, gl := range ghostLines[1:] {
			b.WriteString(demoLineNumStyle.Render("    "))
			b.WriteString(demoGhostStyle.Render(gl))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// =============================================================================
// Command
// =============================================================================

func runDemo(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("demo needs an interactive terminal")
	}

	// The demo learns into a throwaway data dir so playing with it
	// never pollutes the real policy.
	dataDir, err := os.MkdirTemp("", "aleutian-tab-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dataDir)

	cfg := tab.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.Model = llm.MockModelName
	if modelName != "" {
		cfg.Model = modelName
	}

	// The TUI owns the terminal, so the logger stays fully silent.
	log := logging.New(logging.Config{Level: logging.LevelError, Service: "tab-demo", Quiet: true})
	defer log.Close()

	svc, err := tab.NewService(cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	notify := make(chan suggestionMsg, 16)
	sessCfg := cfg.SessionConfig()
	sessCfg.OnSuggestion = func(filePath string, line, char int) {
		select {
		case notify <- suggestionMsg{filePath: filePath, line: line, char: char}:
		default:
		}
	}
	sess := session.NewSession(demoFile, svc, sessCfg, log)
	defer sess.Close()

	p := tea.NewProgram(newDemoModel(sess, notify, demoFile, cfg.Model))
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	final, ok := finalModel.(demoModel)
	if !ok {
		return fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}

	// Resolve the pending suggestion before reading the bandit state so
	// the summary includes the last feedback.
	sess.Close()

	fmt.Println()
	ux.Title("Session")
	ux.KeyValue("suggestions", fmt.Sprintf("%d shown, %d accepted", final.shown, final.accepted))
	fmt.Println()
	printRLStats(svc.GetRLStats(context.Background()))
	return nil
}

// =============================================================================
// Styles
// =============================================================================

var (
	demoTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ux.ColorTealBright)

	demoMutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	demoGhostStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	demoCursorStyle = lipgloss.NewStyle().
			Reverse(true)

	demoLineNumStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
)
