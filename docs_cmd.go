package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/85Ryan/Nebula/internal/script"
	"github.com/85Ryan/Nebula/internal/store"
	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const titleColumn = 28

var (
	docsShowCopy  bool
	docsNewTitle  string
	docsNewText   string
	docsNewFile   string
	docsNewPrompt string
	docsImportAll bool

	docsCmd = &cobra.Command{
		Use:     "docs",
		Aliases: []string{"doc", "documents"},
		Short:   "Manage script documents",
		Args:    cobra.NoArgs,
		RunE:    runDocsList,
	}

	docsListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List documents, newest first",
		Args:    cobra.NoArgs,
		RunE:    runDocsList,
	}

	docsShowCmd = &cobra.Command{
		Use:   "show DOC_ID",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if err := a.selectDocument(cmd.Context(), args[0]); err != nil {
				return err
			}
			doc, _ := a.session.Active()
			printDocument(os.Stdout, doc)

			if docsShowCopy {
				if err := clipboard.WriteAll(doc.Content); err != nil {
					return fmt.Errorf("unable to copy to clipboard: %w", err)
				}
				fmt.Fprintln(os.Stderr, subtle("Copied to clipboard"))
			}
			return nil
		},
	}

	docsNewCmd = &cobra.Command{
		Use:   "new",
		Short: "Create a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			text, err := readScript(docsNewText, docsNewFile, os.Stdin)
			if err != nil {
				return err
			}
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			doc, err := a.session.NewDocument(ctx, text, docsNewPrompt)
			if err != nil {
				return err
			}
			if docsNewTitle != "" {
				if err := a.session.Rename(ctx, doc.ID, docsNewTitle); err != nil {
					return err
				}
				doc.Title = strings.TrimSpace(docsNewTitle)
			}
			fmt.Printf("%s  %s\n", doc.ID, doc.Title)
			return nil
		},
	}

	docsRenameCmd = &cobra.Command{
		Use:   "rename DOC_ID TITLE",
		Short: "Rename a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			id, err := findDocument(a.session.Documents(), args[0])
			if err != nil {
				return err
			}
			return a.session.Rename(ctx, id, args[1])
		},
	}

	docsDeleteCmd = &cobra.Command{
		Use:     "delete DOC_ID...",
		Aliases: []string{"rm"},
		Short:   "Delete documents and their audio",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			for _, ref := range args {
				id, err := findDocument(a.session.Documents(), ref)
				if err != nil {
					return err
				}
				if err := a.session.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, "Deleted", id)
			}
			return nil
		},
	}

	docsImportCmd = &cobra.Command{
		Use:   "import PATH...",
		Short: "Create documents from markdown or text files",
		Long: paragraph(fmt.Sprintf("\n%s markdown and text files as documents. "+
			"Directories are searched recursively, skipping files ignored by git. "+
			"Formatting and code blocks are dropped; the first heading becomes the title.", keyword("Import"))),
		Example: paragraph("nebula docs import chapter1.md\nnebula docs import ./scripts --all"),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			paths, err := scriptPaths(args, docsImportAll)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no markdown or text files found")
			}

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			ex := script.NewExtractor()
			imported := 0
			for _, p := range paths {
				s, err := ex.Load(p)
				if err != nil {
					return err
				}
				if s.Content == "" {
					fmt.Fprintln(os.Stderr, subtle("Skipping empty "+p))
					continue
				}
				doc, err := a.docs.CreateTitled(ctx, s.Title, s.Content, "")
				if err != nil {
					return err
				}
				imported++
				fmt.Printf("%s  %s\n", doc.ID, doc.Title)
			}
			fmt.Fprintf(os.Stderr, "Imported %s\n", humanize.Comma(int64(imported)))
			return nil
		},
	}
)

func runDocsList(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	docs := a.session.Documents()
	if len(docs) == 0 {
		fmt.Fprintln(os.Stderr, "No documents yet. Create one with", keyword("nebula docs new"))
		return nil
	}
	renderDocList(os.Stdout, docs, time.Now())
	return nil
}

// renderDocList prints one line per document: short id, title, audio
// length and size, and when it was last changed.
func renderDocList(w io.Writer, docs []store.Document, now time.Time) {
	for _, d := range docs {
		audio := "-"
		if d.HasAudio() {
			audio = fmt.Sprintf("%s %s", clock(d.AudioDuration), humanize.Bytes(uint64(d.AudioSize))) //nolint:gosec
		}
		updated := d.UpdatedAt
		if updated.IsZero() {
			updated = d.CreatedAt
		}
		fmt.Fprintf(w, "%s  %s  %-14s %s\n",
			shortID(d.ID),
			fitWidth(d.Title, titleColumn),
			audio,
			humanize.RelTime(updated, now, "ago", "from now"),
		)
	}
}

func printDocument(w io.Writer, d store.Document) {
	fmt.Fprintln(w, keyword(d.Title))
	fmt.Fprintln(w, subtle(fmt.Sprintf("%s · %s characters", d.ID, humanize.Comma(int64(utf8.RuneCountInString(d.Content))))))
	if d.Prompt != "" {
		fmt.Fprintln(w, subtle("Instructions: ")+d.Prompt)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, d.Content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// fitWidth truncates or pads s to exactly width terminal cells.
func fitWidth(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// scriptPaths expands directories into the script files they contain.
func scriptPaths(args []string, all bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("unable to open %s: %w", arg, err)
		}
		if !st.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := script.Find(arg, all)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

func init() {
	docsShowCmd.Flags().BoolVarP(&docsShowCopy, "copy", "c", false, "copy the script to the clipboard")

	docsNewCmd.Flags().StringVar(&docsNewTitle, "title", "", "document title")
	docsNewCmd.Flags().StringVar(&docsNewText, "text", "", "script text")
	docsNewCmd.Flags().StringVarP(&docsNewFile, "file", "f", "", "read the script from a file (- for stdin)")
	docsNewCmd.Flags().StringVarP(&docsNewPrompt, "prompt", "p", "", "instructions for the speaker")

	docsImportCmd.Flags().BoolVarP(&docsImportAll, "all", "a", false, "include files ignored by git")

	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsNewCmd, docsRenameCmd, docsDeleteCmd, docsImportCmd)
}
