package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/85Ryan/Nebula/internal/wav"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportInfo   bool

	exportCmd = &cobra.Command{
		Use:   "export DOC_ID",
		Short: "Write the audio of a document to a WAV file",
		Long: paragraph(fmt.Sprintf("\n%s the generated audio of a document. "+
			"The file name defaults to the document title.", keyword("Export"))),
		Example: paragraph("nebula export 3f2a -o chapter1.wav\nnebula export 3f2a --info\nnebula export 3f2a -o - | aplay"),
		Args:    cobra.ExactArgs(1),
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
			doc, err := a.docs.Get(ctx, id)
			if err != nil {
				return err
			}
			if !doc.HasAudio() {
				return fmt.Errorf("%q has no audio yet, run %s first", doc.Title, keyword("nebula generate"))
			}

			if exportInfo {
				return printWAVInfo(os.Stdout, doc.AudioBlob)
			}

			out := exportOutput
			if out == "" {
				out = exportFileName(doc.Title)
			}
			if out == "-" {
				_, err := os.Stdout.Write(doc.AudioBlob)
				return err //nolint:wrapcheck
			}
			if err := os.WriteFile(out, doc.AudioBlob, 0o644); err != nil { //nolint:gosec
				return fmt.Errorf("unable to write %s: %w", out, err)
			}
			fmt.Fprintf(os.Stderr, "Wrote %s (%s, %s)\n", out, humanize.Bytes(uint64(len(doc.AudioBlob))), wav.MIMEType) //nolint:gosec
			return nil
		},
	}
)

func printWAVInfo(w io.Writer, blob []byte) error {
	h, err := wav.ParseHeader(blob)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Format:      PCM %d-bit, %d channel(s)\n", h.BitsPerSample, h.Channels)
	fmt.Fprintf(w, "Sample rate: %d Hz\n", h.SampleRate)
	fmt.Fprintf(w, "Samples:     %s\n", humanize.Comma(int64(h.Samples())))
	fmt.Fprintf(w, "Duration:    %s\n", clock(h.Seconds()))
	fmt.Fprintf(w, "Size:        %s\n", humanize.Bytes(uint64(len(blob)))) //nolint:gosec
	return nil
}

// exportFileName makes a file name from a title.
func exportFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) || r < ' ' {
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" || name == "." || name == ".." {
		name = "nebula"
	}
	return filepath.Clean(name + ".wav")
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (- for stdout)")
	exportCmd.Flags().BoolVar(&exportInfo, "info", false, "print the WAV header instead of writing a file")
}
