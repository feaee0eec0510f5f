// Package script turns markdown files into plain speech scripts.
package script

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/muesli/gitcha"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Extensions are the file types Find picks up.
var Extensions = []string{"*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown", "*.txt"}

// Script is a document ready to import.
type Script struct {
	Path    string
	Title   string
	Content string
}

// Extractor flattens markdown to plain text.
type Extractor struct {
	// SkipCode drops code blocks and inline code
	SkipCode bool
}

// NewExtractor returns an extractor that skips code.
func NewExtractor() *Extractor {
	return &Extractor{SkipCode: true}
}

// Extract returns the speakable text of markdown and the text of its first
// heading, if any. Block elements end up on separate lines.
func (e *Extractor) Extract(markdown []byte) (content, title string) {
	markdown = removeFrontmatter(markdown)
	reader := text.NewReader(markdown)
	doc := goldmark.New().Parser().Parse(reader)

	var buf strings.Builder
	e.walk(doc, reader.Source(), &buf, &title)
	return tidy(buf.String()), strings.TrimSpace(title)
}

func (e *Extractor) walk(node ast.Node, source []byte, buf *strings.Builder, title *string) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if e.SkipCode {
			return
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		buf.WriteString("\n")
		return

	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() {
			buf.WriteString(softBreak(buf.String()))
		}
		if n.HardLineBreak() {
			buf.WriteString("\n")
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		if e.SkipCode {
			return
		}

	case *ast.Image:
		return

	case *ast.Heading:
		start := buf.Len()
		e.children(n, source, buf, title)
		if *title == "" {
			*title = buf.String()[start:]
		}
		buf.WriteString("\n")
		return

	case *ast.Paragraph, *ast.ListItem, *ast.ThematicBreak:
		e.children(n, source, buf, title)
		buf.WriteString("\n")
		return
	}

	e.children(node, source, buf, title)
}

func (e *Extractor) children(node ast.Node, source []byte, buf *strings.Builder, title *string) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		e.walk(c, source, buf, title)
	}
}

// softBreak joins wrapped lines: latin text gets a space, CJK text none.
func softBreak(prev string) string {
	r, _ := utf8.DecodeLastRuneInString(prev)
	if r == utf8.RuneError || unicode.Is(unicode.Han, r) || (unicode.IsPunct(r) && r > unicode.MaxLatin1) {
		return ""
	}
	return " "
}

// tidy trims every line and drops empty ones.
func tidy(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func removeFrontmatter(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("---\n")) {
		return b
	}
	end := bytes.Index(b[4:], []byte("\n---"))
	if end < 0 {
		return b
	}
	rest := b[4+end+4:]
	return bytes.TrimLeft(rest, "\r\n")
}

// Load reads and extracts one file. Plain text files are taken as is. The
// title falls back to the file name without extension.
func (e *Extractor) Load(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read script: %w", err)
	}

	s := &Script{Path: path}
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		s.Content = tidy(string(b))
	} else {
		s.Content, s.Title = e.Extract(b)
	}
	if s.Title == "" {
		s.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Find returns the script files below dir, sorted. Files ignored by git are
// skipped unless all is set.
func Find(dir string, all bool) ([]string, error) {
	var (
		ch  chan gitcha.SearchResult
		err error
	)
	if all {
		ch, err = gitcha.FindAllFilesExcept(dir, Extensions, nil)
	} else {
		ch, err = gitcha.FindFilesExcept(dir, Extensions, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to search %s: %w", dir, err)
	}

	var paths []string
	for res := range ch {
		paths = append(paths, res.Path)
	}
	sort.Strings(paths)
	return paths, nil
}
