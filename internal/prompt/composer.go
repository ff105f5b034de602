// Package prompt composes the message sequences sent to LLM providers.
// The system prompt is assembled once and reused; per-step user messages
// carry the file path, framework, file role, and what was generated so
// far, so each step sees consistent project context.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// Composer builds provider message sequences.
type Composer struct {
	systemOnce sync.Once
	system     string
}

// NewComposer creates a Composer.
func NewComposer() *Composer {
	return &Composer{}
}

// System returns the cached system prompt.
func (c *Composer) System() string {
	c.systemOnce.Do(func() {
		c.system = buildSystemPrompt()
		logging.PromptDebug("system prompt assembled (%d bytes)", len(c.system))
	})
	return c.system
}

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an expert full-stack developer generating production-quality source files.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Output ONLY the contents of the requested file.\n")
	b.WriteString("- Wrap the file in a single fenced code block.\n")
	b.WriteString("- Do not add commentary before or after the code block.\n")
	b.WriteString("- Write complete, runnable code. Never leave placeholder comments like 'add logic here'.\n")
	b.WriteString("- Keep the file consistent with the files already generated for this project.\n")
	b.WriteString("- Prefer modern, widely supported syntax for the target framework.\n")
	return b.String()
}

// StepContext carries what the composer needs to know about one step.
type StepContext struct {
	Description string
	Framework   types.Framework
	Spec        types.FileSpec
	// Prior maps already-generated path -> contents. Only dependency
	// files are embedded in full; the rest are listed by name.
	Prior map[string]string
}

// ForStep builds the message sequence for generating one file.
func (c *Composer) ForStep(sc StepContext) []types.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", sc.Description)
	fmt.Fprintf(&b, "Framework: %s\n\n", sc.Framework)
	fmt.Fprintf(&b, "Generate the file %q.\n", sc.Spec.Path)
	fmt.Fprintf(&b, "Role: %s. %s\n", sc.Spec.Type, sc.Spec.Description)

	if len(sc.Prior) > 0 {
		b.WriteString("\nFiles generated so far:\n")
		for _, p := range sortedKeys(sc.Prior) {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	deps := dependencyBodies(sc.Spec.DependsOn, sc.Prior)
	if len(deps) > 0 {
		b.WriteString("\nRelevant file contents:\n")
		for _, d := range deps {
			fmt.Fprintf(&b, "\nfilepath: %s\n```\n%s\n```\n", d.path, strings.TrimRight(d.body, "\n"))
		}
	}

	fmt.Fprintf(&b, "\nRespond with only the complete contents of %s in one code block.", sc.Spec.Path)

	return []types.Message{
		{Role: types.RoleSystem, Content: c.System()},
		{Role: types.RoleUser, Content: b.String()},
	}
}

// ForEdit builds the message sequence for modifying an existing file.
// The current body is embedded so the model edits rather than rewrites
// from scratch.
func (c *Composer) ForEdit(description string, framework types.Framework, path, current string) []types.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", description)
	fmt.Fprintf(&b, "Framework: %s\n\n", framework)
	fmt.Fprintf(&b, "Update the file %q to satisfy the request above.\n", path)
	fmt.Fprintf(&b, "\nCurrent contents:\n```\n%s\n```\n", strings.TrimRight(current, "\n"))
	fmt.Fprintf(&b, "\nRespond with only the complete updated contents of %s in one code block.", path)

	return []types.Message{
		{Role: types.RoleSystem, Content: c.System()},
		{Role: types.RoleUser, Content: b.String()},
	}
}

type depBody struct {
	path string
	body string
}

func dependencyBodies(dependsOn []string, prior map[string]string) []depBody {
	var out []depBody
	for _, p := range dependsOn {
		if body, ok := prior[p]; ok {
			out = append(out, depBody{path: p, body: body})
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
