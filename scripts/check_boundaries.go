package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "faucet"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule constrains what one layer of a context service may import.
// Prefixes starting with "./" are relative to the service root.
type layerRule struct {
	allowThirdParty bool
	allowed         []string
	forbidden       []string
}

var contextLayerRules = map[string]layerRule{
	"domain": {
		allowed: []string{"./domain"},
	},
	"ports": {
		allowed: []string{"./domain", modulePath + "/internal/shared/events"},
	},
	"application": {
		allowed: []string{"./application", "./domain", "./ports"},
	},
	"transport": {
		allowed: []string{"./transport"},
	},
	"adapters": {
		allowThirdParty: true,
		allowed: []string{
			"./adapters",
			"./application",
			"./domain",
			"./ports",
			"./transport",
			modulePath + "/internal/platform/substrate",
			modulePath + "/internal/shared",
		},
	},
}

// Shared packages sit below every context and may not reach back up.
var sharedRule = layerRule{
	forbidden: []string{modulePath + "/contexts", modulePath + "/internal/platform", modulePath + "/internal/app"},
}

func main() {
	violations := append(collectContextViolations("contexts"), collectSharedViolations(filepath.Join("internal", "shared"))...)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectContextViolations(root string) []violation {
	var violations []violation
	walkSources(root, func(path string, normalized string) {
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 {
			return
		}
		serviceRoot := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		layer := parts[3]
		rule, constrained := contextLayerRules[layer]

		for _, imp := range readImports(path, normalized, &violations) {
			if hasPrefix(imp.path, modulePath+"/contexts") && !hasPrefix(imp.path, serviceRoot) {
				violations = append(violations, imp.violation("cross-service imports are forbidden"))
				continue
			}
			if constrained {
				if reason := rule.check(imp.path, serviceRoot); reason != "" {
					violations = append(violations, imp.violation(layer+" "+reason))
				}
			}
		}
	})
	return violations
}

func collectSharedViolations(root string) []violation {
	var violations []violation
	walkSources(root, func(path string, normalized string) {
		for _, imp := range readImports(path, normalized, &violations) {
			if reason := sharedRule.check(imp.path, ""); reason != "" {
				violations = append(violations, imp.violation("shared "+reason))
			}
		}
	})
	return violations
}

// check returns why importPath breaks the rule, or "" when it is allowed.
func (r layerRule) check(importPath string, serviceRoot string) string {
	for _, prefix := range r.forbidden {
		if hasPrefix(importPath, prefix) {
			return "must not import " + prefix
		}
	}
	if isStdlib(importPath) || len(r.allowed) == 0 {
		return ""
	}
	if !strings.HasPrefix(importPath, modulePath+"/") {
		if r.allowThirdParty {
			return ""
		}
		return "must not depend on third-party packages"
	}
	for _, prefix := range r.allowed {
		if strings.HasPrefix(prefix, "./") {
			prefix = serviceRoot + prefix[1:]
		}
		if hasPrefix(importPath, prefix) {
			return ""
		}
	}
	return "import is outside explicit allowlist"
}

type sourceImport struct {
	file string
	line int
	path string
}

func (i sourceImport) violation(rule string) violation {
	return violation{File: i.file, Line: i.line, Import: i.path, Rule: rule}
}

func walkSources(root string, visit func(path string, normalized string)) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		visit(path, filepath.ToSlash(path))
		return nil
	})
}

func readImports(path string, normalized string, violations *[]violation) []sourceImport {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		*violations = append(*violations, violation{File: normalized, Line: 1, Rule: "file must parse"})
		return nil
	}
	imports := make([]sourceImport, 0, len(file.Imports))
	for _, imp := range file.Imports {
		imports = append(imports, sourceImport{
			file: normalized,
			line: fset.Position(imp.Pos()).Line,
			path: strings.Trim(imp.Path.Value, "\""),
		})
	}
	return imports
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	if strings.HasPrefix(importPath, modulePath+"/") {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
