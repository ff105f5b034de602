package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webforge/internal/types"
)

func TestSystemPromptCached(t *testing.T) {
	c := NewComposer()
	first := c.System()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, c.System())
	assert.Contains(t, first, "code block")
}

func TestForStepIncludesContext(t *testing.T) {
	c := NewComposer()
	msgs := c.ForStep(StepContext{
		Description: "todo app with login",
		Framework:   types.FrameworkReact,
		Spec: types.FileSpec{
			Path:        "src/App.js",
			Type:        types.FileTypeReactComp,
			Description: "top-level App component",
			DependsOn:   []string{"src/index.js"},
		},
		Prior: map[string]string{
			"package.json": `{"name":"todo"}`,
			"src/index.js": "import App from './App';",
		},
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, types.RoleUser, msgs[1].Role)

	user := msgs[1].Content
	assert.Contains(t, user, "todo app with login")
	assert.Contains(t, user, string(types.FrameworkReact))
	assert.Contains(t, user, `"src/App.js"`)

	// All prior files are listed by name.
	assert.Contains(t, user, "- package.json")
	assert.Contains(t, user, "- src/index.js")

	// Only declared dependencies get embedded bodies.
	assert.Contains(t, user, "import App from './App';")
	assert.NotContains(t, user, `{"name":"todo"}`)
}

func TestForStepNoPriorFiles(t *testing.T) {
	c := NewComposer()
	msgs := c.ForStep(StepContext{
		Description: "landing page",
		Framework:   types.FrameworkWeb,
		Spec:        types.FileSpec{Path: "index.html", Type: types.FileTypeHTML, Description: "main page"},
	})

	require.Len(t, msgs, 2)
	assert.NotContains(t, msgs[1].Content, "Files generated so far")
	assert.NotContains(t, msgs[1].Content, "Relevant file contents")
}

func TestForEditEmbedsCurrentBody(t *testing.T) {
	c := NewComposer()
	current := "body { margin: 0; }\n"
	msgs := c.ForEdit("make the header blue", types.FrameworkWeb, "style.css", current)

	require.Len(t, msgs, 2)
	user := msgs[1].Content
	assert.Contains(t, user, "make the header blue")
	assert.Contains(t, user, "body { margin: 0; }")
	assert.Contains(t, user, `"style.css"`)
	// Body arrives fenced with no trailing blank line inside the fence.
	assert.Contains(t, user, "```\nbody { margin: 0; }\n```")
}

func TestForStepDeterministicOrdering(t *testing.T) {
	c := NewComposer()
	sc := StepContext{
		Description: "app",
		Framework:   types.FrameworkReact,
		Spec:        types.FileSpec{Path: "src/App.js", Type: types.FileTypeReactComp},
		Prior: map[string]string{
			"z.js": "z",
			"a.js": "a",
			"m.js": "m",
		},
	}
	user := c.ForStep(sc)[1].Content
	ia := strings.Index(user, "- a.js")
	im := strings.Index(user, "- m.js")
	iz := strings.Index(user, "- z.js")
	assert.True(t, ia < im && im < iz, "prior file listing must be sorted")
}
