package main

import "testing"

func TestRunWithoutArgsShowsUsage(t *testing.T) {
	if err := run(nil); err != nil {
		t.Fatalf("run returned error without args: %v", err)
	}
}

func TestRunHelpCommand(t *testing.T) {
	if err := run([]string{"help"}); err != nil {
		t.Fatalf("run returned error for help command: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run([]string{"unknown"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunSearchRejectsBadTarget(t *testing.T) {
	if err := run([]string{"search", "-target", "not a target at all::"}); err == nil {
		t.Fatal("expected error for unresolvable target")
	}
}
