package jsonstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/nadimtuhin/loopwork/internal/task"
)

// markdownPath is the sibling description file for a task id: "{id}.md".
func markdownPath(dir, id string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.md", id))
}

// readMarkdown loads a task's sibling Markdown file, if present, and
// returns its raw body plus a title override taken from the first `# H1`
// line. A missing file is not an error — entries are free to keep their
// description inline.
func readMarkdown(dir, id string) (body string, titleOverride string, err error) {
	path := markdownPath(dir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", errors.Wrapf(task.ErrStoreWriteFailed, "jsonstore: read %s: %v", path, err)
	}

	title := firstH1(data)
	return string(data), title, nil
}

// writeMarkdown persists a task's description as its sibling Markdown
// file, creating or overwriting it. An empty body removes the file.
func writeMarkdown(dir, id, body string) error {
	path := markdownPath(dir, id)
	if body == "" {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(task.ErrStoreWriteFailed, "jsonstore: remove %s: %v", path, err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "jsonstore: write %s: %v", path, err)
	}
	return nil
}

// firstH1 returns the plain text of the document's first level-1 heading,
// or "" if there is none.
func firstH1(source []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || title != "" {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			var buf bytes.Buffer
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					buf.Write(t.Segment.Value(source))
				}
			}
			title = buf.String()
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}
