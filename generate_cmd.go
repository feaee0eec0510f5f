package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	genText    string
	genFile    string
	genPrompt  string
	genVoice   string
	genModel   string
	genPlay    bool
	genMissing bool

	generateCmd = &cobra.Command{
		Use:   "generate [DOC_ID]",
		Short: "Synthesize speech for a document",
		Long: paragraph(fmt.Sprintf("\n%s speech for a document and store it with the document. "+
			"Without an id a new document is created from --text or --file, or the newest document is used. "+
			"--voice and --model also become the saved settings.", keyword("Generate"))),
		Example: paragraph("nebula generate --text \"[AMAZED] 你好，世界！\"\n" +
			"nebula generate 3f2a --voice Kore --model pro --play\n" +
			"nebula generate --missing\n" +
			"cat script.txt | nebula generate --file -"),
		Args: func(cmd *cobra.Command, args []string) error {
			if genMissing {
				return nil
			}
			return cobra.MaximumNArgs(1)(cmd, args)
		},
		RunE: runGenerate,
	}
)

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if genMissing {
		return runBatch(ctx, args)
	}

	text, err := readScript(genText, genFile, os.Stdin)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, genPlay)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	sess := a.session

	switch {
	case len(args) == 1:
		if err := a.selectDocument(ctx, args[0]); err != nil {
			return err
		}
		if text != "" {
			if err := sess.SetContent(ctx, text); err != nil {
				return err
			}
		}
	case text != "":
		if _, err := sess.NewDocument(ctx, text, genPrompt); err != nil {
			return err
		}
	default:
		if _, ok := sess.Active(); !ok {
			return errors.New("nothing to generate, pass --text or --file")
		}
	}

	if cmd.Flags().Changed("prompt") {
		if err := sess.SetPrompt(ctx, genPrompt); err != nil {
			return err
		}
	}
	if genVoice != "" {
		v, err := ttypes.ParseVoice(genVoice)
		if err != nil {
			return err
		}
		if err := sess.SetSettings(sess.Settings().Audio.WithVoice(v)); err != nil {
			return err
		}
	}
	if genModel != "" {
		m, err := ttypes.ParseModel(genModel)
		if err != nil {
			return err
		}
		if err := sess.SetModel(m); err != nil {
			return err
		}
	}

	doc, _ := sess.Active()
	current := sess.Settings()
	fmt.Fprintf(os.Stderr, "Generating %s with %s (%s)...\n", keyword(doc.Title), current.Audio.Voice, current.Model.ShortName())

	start := time.Now()
	out, err := sess.Generate(ctx)
	if out == nil {
		return explain(err)
	}
	if err != nil {
		// the audio is still usable, it just was not stored
		fmt.Fprintln(os.Stderr, warning("Could not save the audio:"), err)
	}

	fmt.Printf("%s  %s  %s  %s\n",
		doc.ID,
		clock(out.Duration),
		humanize.Bytes(uint64(len(out.WAV))), //nolint:gosec
		subtle(fmt.Sprintf("took %s", time.Since(start).Round(100*time.Millisecond))),
	)

	if genPlay {
		return a.play(ctx, term.IsTerminal(int(os.Stdout.Fd())))
	}
	return nil
}

// readScript returns the text from --text or --file, where "-" is stdin.
func readScript(text, file string, stdin io.Reader) (string, error) {
	if text != "" && file != "" {
		return "", errors.New("use either --text or --file, not both")
	}
	if file == "" {
		return strings.TrimSpace(text), nil
	}

	var (
		b   []byte
		err error
	)
	if file == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("unable to read script: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func init() {
	generateCmd.Flags().StringVar(&genText, "text", "", "script text")
	generateCmd.Flags().StringVarP(&genFile, "file", "f", "", "read the script from a file (- for stdin)")
	generateCmd.Flags().StringVarP(&genPrompt, "prompt", "p", "", "instructions for the speaker")
	generateCmd.Flags().StringVar(&genVoice, "voice", "", "voice name")
	generateCmd.Flags().StringVarP(&genModel, "model", "m", "", "flash or pro")
	generateCmd.Flags().BoolVar(&genPlay, "play", false, "play the result")
	generateCmd.Flags().BoolVar(&genMissing, "missing", false, "generate every document without audio, ids given first")
	generateCmd.MarkFlagsMutuallyExclusive("missing", "play")
	generateCmd.MarkFlagsMutuallyExclusive("missing", "text")
	generateCmd.MarkFlagsMutuallyExclusive("missing", "file")
}
