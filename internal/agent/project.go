// Package agent is the endpoint side of the message socket: it receives
// batches of visual edits, turns them into an instruction for a coding agent
// and reports completion back to the editor.
package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

// Project describes the codebase the agent edits.
type Project struct {
	Framework  string `json:"framework"`
	Styling    string `json:"styling"`
	TypeScript bool   `json:"typescript"`
}

func (p Project) String() string {
	lang := "JavaScript"
	if p.TypeScript {
		lang = "TypeScript"
	}
	return fmt.Sprintf("%s + %s (%s)", p.Framework, p.Styling, lang)
}

// FallbackProject is used when analysis fails.
var FallbackProject = Project{Framework: "react", Styling: "css"}

var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"coverage":     true,
}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// AnalyzeProject detects framework, styling approach and language from the
// package manifest and the files under dir.
func AnalyzeProject(dir string) (Project, error) {
	p := Project{Framework: "html", Styling: "css"}

	deps := map[string]bool{}
	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	switch {
	case err == nil:
		var pkg packageJSON
		if err := json.Unmarshal(b, &pkg); err != nil {
			return p, fmt.Errorf("package.json: %w", err)
		}
		for k := range pkg.Dependencies {
			deps[k] = true
		}
		for k := range pkg.DevDependencies {
			deps[k] = true
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return p, err
	}

	switch {
	case deps["react"] || deps["react-dom"]:
		p.Framework = "react"
	case deps["vue"]:
		p.Framework = "vue"
	case deps["svelte"]:
		p.Framework = "svelte"
	case deps["@angular/core"]:
		p.Framework = "angular"
	}
	switch {
	case deps["tailwindcss"]:
		p.Styling = "tailwind"
	case deps["styled-components"]:
		p.Styling = "styled-components"
	case deps["@emotion/react"] || deps["@emotion/styled"]:
		p.Styling = "emotion"
	}
	p.TypeScript = deps["typescript"]

	cssModules := false
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".module.css") || strings.HasSuffix(name, ".module.scss") {
			cssModules = true
		}
		switch filepath.Ext(name) {
		case ".ts", ".tsx":
			p.TypeScript = true
		}
		return nil
	})
	if err != nil {
		return p, err
	}
	if cssModules && p.Styling == "css" {
		p.Styling = "css-modules"
	}
	return p, nil
}
