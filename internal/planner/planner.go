// Package planner maps a natural-language project description and
// client preferences to an ordered list of file-generation steps.
// Planning is deterministic: identical inputs yield identical plans.
package planner

import (
	"sort"
	"strings"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// Preferences carry the client's explicit choices.
type Preferences struct {
	Framework string `json:"framework,omitempty"`
}

// Planner builds plans. Stateless.
type Planner struct{}

// New creates a Planner.
func New() *Planner {
	return &Planner{}
}

// frameworkKeywords drive detection when no preference is given.
// Checked in order; first hit wins.
var frameworkKeywords = []struct {
	keyword   string
	framework types.Framework
}{
	{"react", types.FrameworkReact},
	{"vue", types.FrameworkVue},
	{"express", types.FrameworkExpress},
	{"node", types.FrameworkNode},
	{"html", types.FrameworkWeb},
	{"landing page", types.FrameworkWeb},
	{"website", types.FrameworkWeb},
}

// SelectFramework resolves the framework for a request. An explicit
// preference wins; otherwise the description is keyword-scanned;
// default is plain web.
func (p *Planner) SelectFramework(description string, prefs Preferences) types.Framework {
	if prefs.Framework != "" {
		switch strings.ToLower(prefs.Framework) {
		case "react":
			return types.FrameworkReact
		case "vue":
			return types.FrameworkVue
		case "express":
			return types.FrameworkExpress
		case "node":
			return types.FrameworkNode
		default:
			return types.FrameworkWeb
		}
	}

	lower := strings.ToLower(description)
	for _, fk := range frameworkKeywords {
		if strings.Contains(lower, fk.keyword) {
			return fk.framework
		}
	}
	return types.FrameworkWeb
}

// Plan produces the full file plan for a fresh project.
func (p *Planner) Plan(description string, prefs Preferences) *types.Plan {
	framework := p.SelectFramework(description, prefs)
	lower := strings.ToLower(description)

	var files []types.FileSpec
	switch framework {
	case types.FrameworkReact:
		files = reactFiles(lower)
	case types.FrameworkVue:
		files = vueFiles()
	case types.FrameworkExpress, types.FrameworkNode:
		files = nodeFiles()
	default:
		files = webFiles()
	}

	// Stable sort: priority ascending, insertion order breaks ties.
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Priority < files[j].Priority
	})

	plan := &types.Plan{
		Files:      files,
		Framework:  framework,
		TotalSteps: len(files),
	}
	logging.Planner("planned %d steps for %s project", plan.TotalSteps, framework)
	return plan
}

func reactFiles(lower string) []types.FileSpec {
	files := []types.FileSpec{
		{Path: "package.json", Type: types.FileTypePackageConfig, Description: "npm package manifest with react and react-dom", Priority: 1},
		{Path: "public/index.html", Type: types.FileTypeHTML, Description: "HTML shell mounting the React root", Priority: 2},
		{Path: "src/index.js", Type: types.FileTypeReactEntry, Description: "React entry point rendering App", Priority: 3, DependsOn: []string{"package.json"}},
		{Path: "src/App.js", Type: types.FileTypeReactComp, Description: "top-level App component", Priority: 4, DependsOn: []string{"src/index.js"}},
		{Path: "src/App.css", Type: types.FileTypeStylesheet, Description: "styles for the App component", Priority: 5},
	}

	if mentionsAuth(lower) {
		files = append(files,
			types.FileSpec{Path: "src/components/Login.js", Type: types.FileTypeReactComp, Description: "login form component", Priority: 6, DependsOn: []string{"src/App.js"}},
			types.FileSpec{Path: "src/components/Register.js", Type: types.FileTypeReactComp, Description: "registration form component", Priority: 7, DependsOn: []string{"src/App.js"}},
		)
	}
	if strings.Contains(lower, "dashboard") {
		files = append(files,
			types.FileSpec{Path: "src/components/Dashboard.js", Type: types.FileTypeReactComp, Description: "dashboard view component", Priority: 8, DependsOn: []string{"src/App.js"}},
		)
	}
	return files
}

func mentionsAuth(lower string) bool {
	for _, kw := range []string{"auth", "login", "sign in", "signin", "register", "sign up", "signup"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func vueFiles() []types.FileSpec {
	return []types.FileSpec{
		{Path: "package.json", Type: types.FileTypePackageConfig, Description: "npm package manifest with vue", Priority: 1},
		{Path: "index.html", Type: types.FileTypeHTML, Description: "HTML shell mounting the Vue app", Priority: 2},
		{Path: "src/main.js", Type: types.FileTypeScript, Description: "Vue entry point", Priority: 3, DependsOn: []string{"package.json"}},
		{Path: "src/App.vue", Type: types.FileTypeTemplate, Description: "root single-file component", Priority: 4, DependsOn: []string{"src/main.js"}},
		{Path: "src/style.css", Type: types.FileTypeStylesheet, Description: "global styles", Priority: 5},
	}
}

func nodeFiles() []types.FileSpec {
	return []types.FileSpec{
		{Path: "package.json", Type: types.FileTypePackageConfig, Description: "npm package manifest", Priority: 1},
		{Path: "server.js", Type: types.FileTypeServer, Description: "HTTP server entry point", Priority: 2, DependsOn: []string{"package.json"}},
		{Path: "routes/index.js", Type: types.FileTypeScript, Description: "route handlers", Priority: 3, DependsOn: []string{"server.js"}},
	}
}

func webFiles() []types.FileSpec {
	return []types.FileSpec{
		{Path: "index.html", Type: types.FileTypeHTML, Description: "main HTML page", Priority: 1},
		{Path: "style.css", Type: types.FileTypeStylesheet, Description: "page styles", Priority: 2, DependsOn: []string{"index.html"}},
		{Path: "script.js", Type: types.FileTypeScript, Description: "page behavior", Priority: 3, DependsOn: []string{"index.html"}},
	}
}

// PlanContinuation selects the subset of existing files most likely to
// need modification for the framework, preserving plan ordering rules.
func (p *Planner) PlanContinuation(framework types.Framework, existing []string) *types.Plan {
	var candidates []types.FileSpec
	switch framework {
	case types.FrameworkReact:
		candidates = []types.FileSpec{
			{Path: "src/App.js", Type: types.FileTypeReactComp, Description: "top-level App component", Priority: 1},
			{Path: "src/App.css", Type: types.FileTypeStylesheet, Description: "styles for the App component", Priority: 2},
		}
	case types.FrameworkVue:
		candidates = []types.FileSpec{
			{Path: "src/App.vue", Type: types.FileTypeTemplate, Description: "root single-file component", Priority: 1},
			{Path: "src/style.css", Type: types.FileTypeStylesheet, Description: "global styles", Priority: 2},
		}
	default:
		candidates = []types.FileSpec{
			{Path: "script.js", Type: types.FileTypeScript, Description: "page behavior", Priority: 1},
			{Path: "style.css", Type: types.FileTypeStylesheet, Description: "page styles", Priority: 2},
		}
	}

	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p] = true
	}

	var files []types.FileSpec
	for _, c := range candidates {
		if have[c.Path] {
			files = append(files, c)
		}
	}

	plan := &types.Plan{
		Files:      files,
		Framework:  framework,
		TotalSteps: len(files),
	}
	logging.Planner("continuation plan: %d of %d candidate files exist", len(files), len(candidates))
	return plan
}
