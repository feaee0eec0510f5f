package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/85Ryan/Nebula/internal/speech"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	annotateDoc   string
	annotateAtPos int

	tonesCmd = &cobra.Command{
		Use:     "tones",
		Aliases: []string{"tags"},
		Short:   "Show the tone tags and pronunciation hints",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			out, err := renderMarkdown(tonesMarkdown())
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}

	tonesTagCmd = &cobra.Command{
		Use:     "tag TONE",
		Short:   "Insert a tone tag into a document",
		Example: paragraph("nebula tones tag amazed --doc 3f2a --at 12"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := speech.ParseTone(args[0])
			if err != nil {
				return err
			}
			if annotateDoc == "" {
				fmt.Println(t.Tag())
				return nil
			}
			return editDocument(cmd, func(content string) (string, error) {
				return speech.InsertTone(content, annotateAtPos, t), nil
			})
		},
	}

	tonesPinyinCmd = &cobra.Command{
		Use:   "pinyin CHAR PINYIN [TONE]",
		Short: "Annotate the reading of a character",
		Long: paragraph(fmt.Sprintf("\n%s the reading of a character. With --doc the first occurrence "+
			"at or after --at is annotated in place. TONE is 1 to 4, or 0 for the neutral tone.", keyword("Fix"))),
		Example: paragraph("nebula tones pinyin 更 geng 1\nnebula tones pinyin 漂 piao 4 --doc 3f2a"),
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tone := 0
			if len(args) == 3 {
				n, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("tone must be a number: %w", err)
				}
				tone = n
			}
			annotation, err := speech.Pronounce(args[0], args[1], tone)
			if err != nil {
				return err
			}
			if annotateDoc == "" {
				fmt.Println(annotation)
				return nil
			}
			return editDocument(cmd, func(content string) (string, error) {
				out, ok := annotateAt(content, annotateAtPos, args[0], annotation)
				if !ok {
					return "", fmt.Errorf("%q does not occur after position %d", args[0], annotateAtPos)
				}
				return out, nil
			})
		},
	}
)

// editDocument applies fn to the content of --doc and saves the result.
func editDocument(cmd *cobra.Command, fn func(string) (string, error)) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if err := a.selectDocument(ctx, annotateDoc); err != nil {
		return err
	}
	doc, _ := a.session.Active()
	content, err := fn(doc.Content)
	if err != nil {
		return err
	}
	if err := a.session.SetContent(ctx, content); err != nil {
		return err
	}
	if err := a.session.Flush(ctx); err != nil {
		return err
	}
	fmt.Println(content)
	return nil
}

// annotateAt replaces the first occurrence of char at or after rune
// offset pos with annotation.
func annotateAt(text string, pos int, char, annotation string) (string, bool) {
	start := 0
	for i := 0; i < pos && start < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[start:])
		start += size
	}
	idx := strings.Index(text[start:], char)
	if idx < 0 || char == "" {
		return text, false
	}
	idx += start
	return text[:idx] + annotation + text[idx+len(char):], true
}

func tonesMarkdown() string {
	var b strings.Builder
	b.WriteString("# Tone tags\n\n")
	b.WriteString("Put a tag before the words it applies to. Tags are acted, not read aloud.\n\n")
	b.WriteString("| Tag | | Direction |\n|---|---|---|\n")
	for _, t := range speech.Tones() {
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", t.Tone.Tag(), t.Label, strings.ReplaceAll(t.Description, "|", `\|`))
	}
	b.WriteString("\n# Pronunciation\n\n")
	b.WriteString("Write `字[pinyin tone]` to fix how a character is read, ")
	b.WriteString("for example `更[geng 1]新` or `漂[piao 4]亮`. Leave out the digit for the neutral tone.\n\n")
	b.WriteString("Use `nebula tones tag` and `nebula tones pinyin` to insert them.\n")
	return b.String()
}

func renderMarkdown(md string) (string, error) {
	width := 80
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = min(w, 120)
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(glamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return out, nil
}

// glamourStyle picks a style for the terminal background.
func glamourStyle() string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return styles.NoTTYStyle
	}
	if termenv.HasDarkBackground() {
		return styles.DarkStyle
	}
	return styles.LightStyle
}

func init() {
	for _, c := range []*cobra.Command{tonesTagCmd, tonesPinyinCmd} {
		c.Flags().StringVarP(&annotateDoc, "doc", "d", "", "document to edit")
		c.Flags().IntVar(&annotateAtPos, "at", 0, "character offset in the script")
	}
	tonesCmd.AddCommand(tonesTagCmd, tonesPinyinCmd)
}
