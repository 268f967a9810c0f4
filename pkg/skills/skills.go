// Package skills implements lightweight local abilities that answer
// without a model round-trip. A skill is either built in (time, echo)
// or loaded from a skill.yaml manifest in the skills directory.
package skills

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gliderlab/clawbee/system"
)

// Manifest is the on-disk skill definition.
//
//	name: weather
//	description: Local weather via wttr.in
//	triggers:
//	  - kind: keyword
//	    value: weather
//	command: "curl -s wttr.in?format=3"
type Manifest struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Triggers    []Trigger `yaml:"triggers"`
	Reply       string    `yaml:"reply,omitempty"`
	Command     string    `yaml:"command,omitempty"`
}

// Trigger matches incoming text. kind is "keyword" (case-insensitive
// substring) or "prefix" (message starts with value).
type Trigger struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

func (t Trigger) matches(text string) bool {
	lower := strings.ToLower(text)
	value := strings.ToLower(t.Value)
	switch t.Kind {
	case "prefix":
		return strings.HasPrefix(lower, value)
	case "keyword":
		return strings.Contains(lower, value)
	}
	return false
}

// Skill is a loaded, runnable skill.
type Skill struct {
	Manifest
	// run overrides the manifest for builtins
	run func(ctx context.Context, text string) (string, error)
}

// Registry holds loaded skills in registration order; the first match
// wins.
type Registry struct {
	skills []*Skill
	runner *system.Runner
}

// NewRegistry creates a registry. The runner executes command skills;
// pass nil to disable them.
func NewRegistry(runner *system.Runner) *Registry {
	r := &Registry{runner: runner}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.skills = append(r.skills, &Skill{
		Manifest: Manifest{
			Name:        "time",
			Description: "Tell the current date and time",
			Triggers: []Trigger{
				{Kind: "keyword", Value: "what time is it"},
				{Kind: "keyword", Value: "current time"},
				{Kind: "prefix", Value: "!time"},
			},
		},
		run: func(ctx context.Context, text string) (string, error) {
			return time.Now().Format("Monday, January 2, 2006 at 3:04 PM"), nil
		},
	})
	r.skills = append(r.skills, &Skill{
		Manifest: Manifest{
			Name:        "echo",
			Description: "Repeat the message back",
			Triggers:    []Trigger{{Kind: "prefix", Value: "!echo "}},
		},
		run: func(ctx context.Context, text string) (string, error) {
			return strings.TrimSpace(strings.TrimPrefix(text, "!echo ")), nil
		},
	})
	r.skills = append(r.skills, &Skill{
		Manifest: Manifest{
			Name:        "run",
			Description: "Run a command under the security policy",
			Triggers:    []Trigger{{Kind: "prefix", Value: "!run "}},
		},
		run: func(ctx context.Context, text string) (string, error) {
			command := strings.TrimSpace(strings.TrimPrefix(text, "!run "))
			if command == "" {
				return "Usage: !run <command>", nil
			}
			if r.runner == nil {
				return "Command execution is disabled.", nil
			}
			// Policy and execution failures are the answer, not a
			// reason to fall through to the model.
			result, err := r.runner.Run(ctx, command)
			if err != nil {
				return fmt.Sprintf("Cannot run that: %v", err), nil
			}
			if !result.Success {
				out := strings.TrimSpace(result.Stderr)
				if out == "" {
					out = strings.TrimSpace(result.Stdout)
				}
				return fmt.Sprintf("Command exited %d: %s", result.ExitCode, out), nil
			}
			out := strings.TrimSpace(result.Stdout)
			if out == "" {
				out = "(no output)"
			}
			return out, nil
		},
	})
}

// LoadDir loads every skill.yaml under dir (one subdirectory per
// skill). A missing directory is not an error.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read skills dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, entry.Name(), "skill.yaml")
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			log.Printf("[WARN] skills: bad manifest %s: %v", manifestPath, err)
			continue
		}
		if m.Name == "" || len(m.Triggers) == 0 {
			log.Printf("[WARN] skills: manifest %s missing name or triggers", manifestPath)
			continue
		}
		r.skills = append(r.skills, &Skill{Manifest: m})
		log.Printf("[skills] Loaded: %s (%s)", m.Name, m.Description)
	}
	return nil
}

// List returns the loaded skills.
func (r *Registry) List() []*Skill {
	out := make([]*Skill, len(r.skills))
	copy(out, r.skills)
	return out
}

// Match finds the first skill triggered by text and runs it. Returns
// false when no skill matches or the matched skill fails, so the
// caller falls through to the model.
func (r *Registry) Match(ctx context.Context, text string) (string, bool) {
	for _, s := range r.skills {
		for _, trigger := range s.Triggers {
			if !trigger.matches(text) {
				continue
			}
			reply, err := r.execute(ctx, s, text)
			if err != nil {
				log.Printf("[WARN] skills: %s failed: %v", s.Name, err)
				return "", false
			}
			return reply, true
		}
	}
	return "", false
}

func (r *Registry) execute(ctx context.Context, s *Skill, text string) (string, error) {
	if s.run != nil {
		return s.run(ctx, text)
	}
	if s.Reply != "" {
		return s.Reply, nil
	}
	if s.Command != "" {
		if r.runner == nil {
			return "", fmt.Errorf("command skills disabled")
		}
		result, err := r.runner.Run(ctx, s.Command)
		if err != nil {
			return "", err
		}
		if !result.Success {
			return "", fmt.Errorf("command exited %d: %s", result.ExitCode, result.Stderr)
		}
		return strings.TrimSpace(result.Stdout), nil
	}
	return "", fmt.Errorf("skill %s has no action", s.Name)
}
