package toolcall

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samsaffron/turnsched/internal/toolapi"
	"github.com/yuin/goldmark"
	"golang.org/x/term"
)

// NewCLIPrompt builds a PromptFunc for manual exercise of the scheduler
// from a plain terminal: render the tool's ConfirmationDetails as text
// and read back a single-letter answer. It refuses to block on a
// non-interactive in (a pipe or redirected file) rather than hang
// waiting on input nobody can supply, and instead proceeds once, the
// same way the teacher's non-TTY fallback does.
func NewCLIPrompt(in *os.File, out io.Writer) PromptFunc {
	reader := bufio.NewReader(in)
	return func(details *toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
		if !term.IsTerminal(int(in.Fd())) {
			fmt.Fprintln(out, "non-interactive session, proceeding once:", renderDetails(details))
			return toolapi.ProceedOnce, nil
		}

		fmt.Fprintln(out, renderDetails(details))
		fmt.Fprint(out, "Proceed? [y]es once / [a]lways / [s]ave / [n]o: ")

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return toolapi.Cancel, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "a", "always":
			return toolapi.ProceedAlways, nil
		case "s", "save":
			return toolapi.ProceedAlwaysAndSave, nil
		case "y", "yes", "":
			return toolapi.ProceedOnce, nil
		default:
			return toolapi.Cancel, nil
		}
	}
}

// renderDetails converts a ConfirmationDetails into a plain-text block
// via goldmark, so a prompt, a diff, or a URL list written as markdown
// in a tool's confirmation text renders sensibly on a bare terminal
// instead of showing raw markup.
func renderDetails(details *toolapi.ConfirmationDetails) string {
	var md strings.Builder
	switch details.Kind {
	case toolapi.ConfirmEdit:
		fmt.Fprintf(&md, "**Edit** `%s`\n\n```diff\n-%s\n+%s\n```\n", details.FilePath, details.OldText, details.NewText)
	case toolapi.ConfirmExec:
		fmt.Fprintf(&md, "**Run command**\n\n```\n%s\n```\n", details.Command)
	case toolapi.ConfirmMCP:
		fmt.Fprintf(&md, "**Call MCP tool** `%s` on server `%s`\n", details.ToolName, details.ServerName)
	case toolapi.ConfirmInfo:
		fmt.Fprintf(&md, "%s\n", details.Prompt)
		for _, u := range details.URLs {
			fmt.Fprintf(&md, "- %s\n", u)
		}
	}

	var rendered strings.Builder
	if err := goldmark.Convert([]byte(md.String()), &rendered); err != nil {
		return md.String()
	}
	return stripTags(rendered.String())
}

// stripTags removes goldmark's HTML tags, leaving plain text suitable
// for a bare terminal that isn't running an HTML-aware renderer.
func stripTags(html string) string {
	var out strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out.WriteRune(r)
		}
	}
	return strings.TrimSpace(out.String())
}
