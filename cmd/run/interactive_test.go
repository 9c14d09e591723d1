package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/trap"
)

func TestFormatCall(t *testing.T) {
	tests := []struct {
		name string
		call callRecord
		want string
	}{
		{"result", callRecord{name: "add", args: "1, 2", result: "3"}, "= 3"},
		{"trap", callRecord{name: "div", args: "1, 0", err: &trap.Trap{Kind: trap.IntegerDivisionByZero}}, "trap: integer divide by zero"},
		{"error", callRecord{name: "f", err: errString("boom")}, "error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatCall(tt.call)
			if !strings.Contains(got, tt.want) || !strings.Contains(got, tt.call.name) {
				t.Errorf("formatCall() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestInteractiveModel_Navigation(t *testing.T) {
	m := newInteractiveModel("test.wasm", engine.Config{}, 0)
	m.module = &engine.Module{}
	m.funcs = []engine.ExportInfo{
		{Name: "add", Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		{Name: "run"},
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1 {
		t.Fatalf("selected = %d after down, want 1", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateInputArgs || len(m.inputs) != 2 {
		t.Fatalf("state = %v with %d inputs, want argument entry for add", m.state, len(m.inputs))
	}
	if !strings.Contains(m.View(), "Calling") {
		t.Errorf("View() = %q", m.View())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateSelectFunc || m.inputs != nil {
		t.Errorf("esc did not return to function selection")
	}

	m.Update(callResultMsg{call: callRecord{name: "add", result: "3"}})
	if m.state != stateShowResult || len(m.history) != 1 {
		t.Errorf("result not recorded: state=%v history=%d", m.state, len(m.history))
	}
}

func TestInteractiveModel_HistoryBounded(t *testing.T) {
	m := newInteractiveModel("test.wasm", engine.Config{}, 0)
	for i := 0; i < maxHistory+3; i++ {
		m.Update(callResultMsg{call: callRecord{name: "f"}})
	}
	if len(m.history) != maxHistory {
		t.Errorf("history = %d, want %d", len(m.history), maxHistory)
	}
}
