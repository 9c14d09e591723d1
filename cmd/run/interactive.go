package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/term"

	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/trap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	trapStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxHistory bounds the calls kept on screen.
const maxHistory = 8

type interactiveModel struct {
	err      error
	engine   *engine.Engine
	module   *engine.Module
	cfg      engine.Config
	filename string
	funcs    []engine.ExportInfo
	inputs   []textinput.Model
	history  []callRecord
	timeout  time.Duration
	selected int
	focusIdx int
	state    modelState
}

type callRecord struct {
	err    error
	name   string
	args   string
	result string
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(filename string, cfg engine.Config, timeout time.Duration) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		cfg:      cfg,
		timeout:  timeout,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err    error
	engine *engine.Engine
	mod    *engine.Module
}

type callResultMsg struct {
	call callRecord
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	e, err := engine.New(m.cfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := e.LoadWasm(ctx, data)
	if err != nil {
		_ = e.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{engine: e, mod: mod}
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	if m.module != nil {
		_ = m.module.Close(ctx)
	}
	if m.engine != nil {
		_ = m.engine.Close(ctx)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.engine = msg.engine
		m.module = msg.mod
		m.funcs = msg.mod.Exports()

	case callResultMsg:
		m.history = append(m.history, msg.call)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}
	call := callRecord{name: f.Name, args: strings.Join(args, ", ")}

	if m.module == nil || m.module.Closed() {
		// an interrupted instance is closed; start over with a fresh one
		if err := m.reload(); err != nil {
			call.err = err
			return callResultMsg{call: call}
		}
	}
	call.result, call.err = callExport(context.Background(), m.engine, m.module, f.Name, args, m.timeout)
	return callResultMsg{call: call}
}

func (m *interactiveModel) reload() error {
	ctx := context.Background()
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return err
	}
	mod, err := m.engine.LoadWasm(ctx, data)
	if err != nil {
		return err
	}
	if m.module != nil {
		_ = m.module.Close(ctx)
	}
	m.module = mod
	return nil
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.module == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Sandbox"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + signature(f.Name, f.Params, f.Results)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		b.WriteString("Calls:\n\n")
		for _, c := range m.history {
			b.WriteString(formatCall(c))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f engine.ExportInfo) string {
	return funcStyle.Render(f.Name) + typeStyle.Render(strings.TrimPrefix(signature(f.Name, f.Params, f.Results), f.Name))
}

func formatCall(c callRecord) string {
	head := funcStyle.Render(c.name) + "(" + c.args + ") "
	var t *trap.Trap
	switch {
	case stderrors.As(c.err, &t):
		return head + trapStyle.Render("trap: "+t.Kind.String()) +
			helpStyle.Render(fmt.Sprintf(" (%d frames)", len(t.Backtrace)))
	case c.err != nil:
		return head + errorStyle.Render("error: "+c.err.Error())
	}
	return head + resultStyle.Render("= "+c.result)
}

func runInteractive(filename string, cfg engine.Config, timeout time.Duration) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}
	p := tea.NewProgram(newInteractiveModel(filename, cfg, timeout), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
