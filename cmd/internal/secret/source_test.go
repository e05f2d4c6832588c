package secret

import (
	"errors"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("VIEWLEDGER_SECRET_TEST", " from-env ")
	src := NewSource("VIEWLEDGER_SECRET_TEST", "fallback", "jwt secret")
	src.prompt = func(string) (string, error) {
		t.Fatal("prompt should not be called")
		return "", nil
	}
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("unexpected secret %q", got)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("VIEWLEDGER_SECRET_TEST", "   ")
	if _, err := NewSource("VIEWLEDGER_SECRET_TEST", "fallback", "jwt secret").Get(); err == nil {
		t.Fatalf("expected error for blank env value")
	}
}

func TestSourceFallsBackThenPrompts(t *testing.T) {
	src := NewSource("", "configured", "jwt secret")
	if got, err := src.Get(); err != nil || got != "configured" {
		t.Fatalf("fallback: got %q err %v", got, err)
	}

	calls := 0
	prompted := NewSource("", "", "jwt secret")
	prompted.prompt = func(label string) (string, error) {
		calls++
		if label != "jwt secret" {
			t.Fatalf("unexpected label %q", label)
		}
		return "typed", nil
	}
	for i := 0; i < 2; i++ {
		got, err := prompted.Get()
		if err != nil || got != "typed" {
			t.Fatalf("prompt: got %q err %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single prompt, got %d", calls)
	}
}

func TestSourcePromptFailureMentionsEnv(t *testing.T) {
	src := NewSource("VIEWLEDGER_SECRET_UNSET", "", "jwt secret")
	src.prompt = func(string) (string, error) { return "", errors.New("no terminal available") }
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}
}
