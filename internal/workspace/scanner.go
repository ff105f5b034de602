package workspace

import (
	"encoding/json"
	"strings"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// packageJSON is the subset of package.json we classify on.
type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// DetectProjectType classifies the workspace by its contents:
// package.json dependencies first, then file extensions. Pure function
// of the filesystem state, safe to call at any time.
func (w *Workspace) DetectProjectType() types.Framework {
	if data, err := w.Read("package.json"); err == nil {
		if fw, ok := classifyPackageJSON(data); ok {
			logging.Scanner("detected %s from package.json", fw)
			return fw
		}
		return types.FrameworkNode
	}

	var sawHTML bool
	for _, p := range w.Tracked() {
		switch {
		case strings.HasSuffix(p, ".py"):
			return types.FrameworkPython
		case strings.HasSuffix(p, ".html"):
			sawHTML = true
		}
	}
	if sawHTML {
		return types.FrameworkWeb
	}
	return types.FrameworkWeb
}

func classifyPackageJSON(data []byte) (types.Framework, bool) {
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		logging.ScannerDebug("package.json did not parse: %v", err)
		return "", false
	}

	has := func(name string) bool {
		if _, ok := pkg.Dependencies[name]; ok {
			return true
		}
		_, ok := pkg.DevDependencies[name]
		return ok
	}

	switch {
	case has("react"):
		return types.FrameworkReact, true
	case has("vue"):
		return types.FrameworkVue, true
	case has("express"):
		return types.FrameworkExpress, true
	}
	return types.FrameworkNode, true
}
