package skills

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gliderlab/clawbee/pkg/config"
	"github.com/gliderlab/clawbee/system"
)

func TestBuiltinEcho(t *testing.T) {
	reg := NewRegistry(nil)

	reply, ok := reg.Match(context.Background(), "!echo hello world")
	if !ok {
		t.Fatal("Expected echo skill to match")
	}
	if reply != "hello world" {
		t.Errorf("Expected 'hello world', got %q", reply)
	}
}

func TestBuiltinTime(t *testing.T) {
	reg := NewRegistry(nil)

	reply, ok := reg.Match(context.Background(), "hey, what time is it?")
	if !ok {
		t.Fatal("Expected time skill to match")
	}
	if reply == "" {
		t.Error("Expected a non-empty time reply")
	}
}

func TestNoMatchFallsThrough(t *testing.T) {
	reg := NewRegistry(nil)

	if _, ok := reg.Match(context.Background(), "tell me about go interfaces"); ok {
		t.Error("Expected no skill match for a normal question")
	}
}

func TestLoadDirManifest(t *testing.T) {
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "greeting")
	os.MkdirAll(skillDir, 0o755)
	manifest := `name: greeting
description: Canned greeting
triggers:
  - kind: keyword
    value: good morning
reply: "Good morning to you too!"
`
	os.WriteFile(filepath.Join(skillDir, "skill.yaml"), []byte(manifest), 0o600)

	reg := NewRegistry(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	reply, ok := reg.Match(context.Background(), "Good morning, bee")
	if !ok {
		t.Fatal("Expected loaded skill to match")
	}
	if reply != "Good morning to you too!" {
		t.Errorf("Unexpected reply: %q", reply)
	}
}

func TestLoadDirMissingIsNotError(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.LoadDir(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Errorf("Expected nil for missing dir, got %v", err)
	}
}

func TestLoadDirSkipsBadManifests(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken")
	os.MkdirAll(bad, 0o755)
	os.WriteFile(filepath.Join(bad, "skill.yaml"), []byte(":\nnot yaml at all\n  -"), 0o600)

	noName := filepath.Join(dir, "noname")
	os.MkdirAll(noName, 0o755)
	os.WriteFile(filepath.Join(noName, "skill.yaml"), []byte("description: missing name\n"), 0o600)

	reg := NewRegistry(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	// only the builtins remain
	if len(reg.List()) != 3 {
		t.Errorf("Expected 3 builtin skills, got %d", len(reg.List()))
	}
}

func TestBuiltinRun(t *testing.T) {
	reg := NewRegistry(system.New(config.SecurityConfig{}))

	reply, ok := reg.Match(context.Background(), "!run echo ok")
	if !ok {
		t.Fatal("Expected run skill to match")
	}
	if reply != "ok" {
		t.Errorf("Expected 'ok', got %q", reply)
	}
}

func TestBuiltinRunBlocked(t *testing.T) {
	reg := NewRegistry(system.New(config.SecurityConfig{BlockedCommands: []string{"rm"}}))

	reply, ok := reg.Match(context.Background(), "!run rm -rf /tmp/x")
	if !ok {
		t.Fatal("Expected run skill to answer, not fall through")
	}
	if !strings.Contains(reply, "Cannot run that") {
		t.Errorf("Expected policy refusal, got %q", reply)
	}
}

func TestBuiltinRunWithoutRunner(t *testing.T) {
	reg := NewRegistry(nil)

	reply, ok := reg.Match(context.Background(), "!run echo hi")
	if !ok {
		t.Fatal("Expected run skill to match")
	}
	if !strings.Contains(reply, "disabled") {
		t.Errorf("Expected disabled notice, got %q", reply)
	}
}

func TestCommandSkillWithoutRunner(t *testing.T) {
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "cmd")
	os.MkdirAll(skillDir, 0o755)
	manifest := `name: cmd
description: runs a command
triggers:
  - kind: prefix
    value: "!cmd"
command: "echo hi"
`
	os.WriteFile(filepath.Join(skillDir, "skill.yaml"), []byte(manifest), 0o600)

	reg := NewRegistry(nil)
	reg.LoadDir(dir)

	// without a runner the skill fails closed and falls through
	if _, ok := reg.Match(context.Background(), "!cmd now"); ok {
		t.Error("Expected command skill to fall through without a runner")
	}
}
