package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseStack,
				Kind:   KindInvalidInput,
				Path:   []string{"engine", "config", "StackSize"},
				Detail: "stack size too large",
			},
			contains: []string{"[stack]", "invalid_input", "engine.config.StackSize", "stack size too large"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRegister,
				Kind:  KindOverlap,
			},
			contains: []string{"[register]", "overlap"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseInstall,
				Kind:   KindSystem,
				Detail: "rt_sigaction",
				Cause:  errors.New("operation not permitted"),
			},
			contains: []string{"[install]", "system", "rt_sigaction", "caused by", "operation not permitted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseStack,
		Kind:  KindAllocation,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseRegister,
		Kind:  KindOverlap,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseRegister, Kind: KindOverlap}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseCall, Kind: KindOverlap}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseRegister, Kind: KindNotFound}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, &Error{Phase: PhaseRegister, Kind: KindOverlap}) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseStack, KindInvalidInput).
		Path("engine", "StackSize").
		Value(42).
		Cause(cause).
		Detail("size %d exceeds %d", 42, 16).
		Build()

	if err.Phase != PhaseStack {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseStack)
	}
	if err.Kind != KindInvalidInput {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidInput)
	}
	if len(err.Path) != 2 || err.Path[0] != "engine" || err.Path[1] != "StackSize" {
		t.Errorf("Path = %v, want [engine StackSize]", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "size 42 exceeds 16" {
		t.Errorf("Detail = %v, want 'size 42 exceeds 16'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Overlap", func(t *testing.T) {
		err := Overlap(PhaseRegister, 0x1000, 0x1040, 0x1020, 0x1080)
		if err.Kind != KindOverlap {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverlap)
		}
		if !strings.Contains(err.Detail, "0x1000") || !strings.Contains(err.Detail, "0x1080") {
			t.Errorf("Detail = %v, should contain both ranges", err.Detail)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseStack, 1024, errors.New("ENOMEM"))
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
		if err.Cause == nil {
			t.Error("Cause should be set")
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseInstall, "signal handlers on plan9")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseCall, []string{"stack"}, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Misuse", func(t *testing.T) {
		err := Misuse(PhaseFiber, "resume of a completed fiber")
		if err.Kind != KindMisuse {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMisuse)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseStack, "stack pool")
		if err.Kind != KindClosed || !strings.Contains(err.Detail, "stack pool") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseLoad, "export", "run")
		if err.Kind != KindNotFound || !strings.Contains(err.Detail, `"run"`) {
			t.Errorf("unexpected error %v", err)
		}
	})
}
