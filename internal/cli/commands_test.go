package cli

import "testing"

func TestSubmitCmd_RequiresPrompt(t *testing.T) {
	cmd := NewSubmitCmd(New())
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error when prompt not provided")
	}
}

func TestSubmitCmd_Flags(t *testing.T) {
	cmd := NewSubmitCmd(New())
	for _, name := range []string{"num-images", "model-id", "preferred-model", "do-not-save"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag to exist", name)
		}
	}
}

func TestCancelCmd_RequiresBatchID(t *testing.T) {
	cmd := NewCancelCmd(New())
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error when batch-id not provided")
	}
}

func TestWorkersCmd_NoArgsRequired(t *testing.T) {
	cmd := NewWorkersCmd(New())
	if cmd.Args != nil {
		if err := cmd.Args(cmd, nil); err != nil {
			t.Errorf("expected no positional args required, got %v", err)
		}
	}
}

func TestWatchCmd_HasNoTUIFlag(t *testing.T) {
	cmd := NewWatchCmd(New())
	if cmd.Flags().Lookup("no-tui") == nil {
		t.Error("expected --no-tui flag to exist")
	}
}

func TestDaemonCmd_HasSubcommands(t *testing.T) {
	cmd := NewDaemonCmd(New())
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status"} {
		if !names[want] {
			t.Errorf("expected daemon subcommand %q", want)
		}
	}
}
