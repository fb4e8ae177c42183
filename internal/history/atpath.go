package history

import (
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"
)

// atCommandPattern matches an "@" followed by a path-ish fragment (no
// whitespace), the at-command convention §4.6 step 1 describes for
// referencing project files inline in a user message.
var atCommandPattern = regexp.MustCompile(`@([^\s@]+)`)

// ExpandAtPaths rewrites every "@fragment" occurrence in text into the
// best fuzzy match against projectFiles, falling back to an exact
// substring match and finally leaving the fragment untouched if nothing
// matches. This is the at-command expansion step itself; handing the
// expanded reference to an editor for confirmation is the
// edit-corrector's job and stays out of scope here.
func ExpandAtPaths(text string, projectFiles []string) string {
	if len(projectFiles) == 0 {
		return text
	}
	return atCommandPattern.ReplaceAllStringFunc(text, func(match string) string {
		fragment := match[1:]
		if resolved := resolveAtPath(fragment, projectFiles); resolved != "" {
			return "@" + resolved
		}
		return match
	})
}

func resolveAtPath(fragment string, projectFiles []string) string {
	if matches := fuzzy.Find(fragment, projectFiles); len(matches) > 0 {
		return matches[0].Str
	}
	for _, f := range projectFiles {
		if strings.Contains(f, fragment) {
			return f
		}
	}
	return ""
}
