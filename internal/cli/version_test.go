package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd_Output(t *testing.T) {
	app := New()
	app.SetVersion("1.2.3", "abc1234", "2026-01-15T10:30:00Z")

	cmd := NewVersionCmd(app)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "1.2.3") {
		t.Error("output should contain version 1.2.3")
	}
	if !strings.Contains(output, "abc1234") {
		t.Error("output should contain commit abc1234")
	}
	if !strings.HasPrefix(output, "dispatchd version ") {
		t.Errorf("expected output to start with 'dispatchd version ', got %q", output)
	}
}

func TestVersionCmd_DefaultValues(t *testing.T) {
	app := New()

	cmd := NewVersionCmd(app)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "dev") {
		t.Error("output should contain default version 'dev'")
	}
	if strings.Count(output, "unknown") != 2 {
		t.Errorf("expected 2 occurrences of 'unknown', got output %q", output)
	}
}
