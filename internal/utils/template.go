package utils

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/pathutil"

	"github.com/itchyny/timefmt-go"
)

// variablePattern matches ${var} patterns.
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Template is a snapshot file path that supports template expansion.
// It can contain the ${name} variable and strftime tokens like %Y, %m, %d.
type Template string

func (t Template) ExpandTilde() Template {
	return Template(pathutil.ExpandTilde(string(t)))
}

// ExpandWithRoot replaces ${name} with the base name of the watched root.
func (t Template) ExpandWithRoot(root string) Template {
	name := filepath.Base(filepath.Clean(pathutil.ExpandTilde(root)))
	return replaceVariables(t, map[string]string{
		"name": name,
	})
}

func (t Template) ExpandWithTime(now time.Time) Template {
	return Template(timefmt.Format(now, string(t)))
}

// Expand applies every expansion: tilde, root variables, then time.
func (t Template) Expand(root string, now time.Time) string {
	return t.ExpandTilde().ExpandWithRoot(root).ExpandWithTime(now).String()
}

func (t Template) String() string {
	return string(t)
}

func replaceVariables(template Template, vars map[string]string) Template {
	result := variablePattern.ReplaceAllStringFunc(string(template), func(match string) string {
		// Extract variable name from ${name}
		varName := match[2 : len(match)-1]
		if val, ok := vars[varName]; ok {
			return val
		}
		return match // leave unchanged if not found
	})
	return Template(result)
}
