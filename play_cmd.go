package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/ui"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	playTUI   bool
	playPlain bool

	playCmd = &cobra.Command{
		Use:   "play [DOC_ID]",
		Short: "Play the generated audio of a document",
		Long: paragraph(fmt.Sprintf("\n%s the audio of a document, the newest one if no id is given. "+
			"A terminal gets the interactive player; otherwise progress is printed as it plays. "+
			"Edits to the settings file apply while playing.", keyword("Play"))),
		Example: paragraph("nebula play\nnebula play 3f2a --plain"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if len(args) == 1 {
				if err := a.selectDocument(ctx, args[0]); err != nil {
					return err
				}
			}

			useTUI := term.IsTerminal(int(os.Stdout.Fd()))
			if cmd.Flags().Changed("tui") {
				useTUI = playTUI
			}
			if playPlain {
				useTUI = false
			}
			return a.play(ctx, useTUI)
		},
	}
)

// play plays the active document until it ends, the user quits or ctx is
// done.
func (a *app) play(ctx context.Context, useTUI bool) error {
	doc, ok := a.session.Active()
	if !ok {
		return errors.New("no documents yet, create one with nebula docs new")
	}
	if !doc.HasAudio() {
		return fmt.Errorf("%q has no audio yet, run %s first", doc.Title, keyword("nebula generate"))
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := a.settings.Watch(watchCtx, a.session.Reload); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Settings watch stopped", "error", err)
		}
	}()

	if !useTUI {
		fmt.Fprintln(os.Stderr, doc.Title)
		return playUntilEnd(ctx, a.engine, os.Stderr)
	}

	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	current := a.session.Settings()
	cfg.Title = doc.Title
	cfg.Voice = current.Audio.Voice
	cfg.Model = current.Model
	cfg.AutoPlay = true

	if _, err := ui.NewProgram(cfg, a.engine, a.session).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// playUntilEnd plays the loaded audio and prints the clock once a second.
func playUntilEnd(ctx context.Context, engine *audio.Engine, w io.Writer) error {
	if err := engine.Play(); err != nil {
		return err
	}
	defer engine.Stop()

	last := -1
	err := audio.NewTracker(engine).Run(ctx, func(p audio.Progress) {
		if sec := int(p.Display); sec != last || p.Ended {
			last = sec
			fmt.Fprintf(w, "\r%s / %s", clock(p.Display), clock(p.DisplayTotal))
		}
		if p.Ended {
			fmt.Fprintf(w, "\r%s / %s", clock(p.DisplayTotal), clock(p.DisplayTotal))
		}
	})
	fmt.Fprintln(w)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func clock(sec float64) string {
	d := time.Duration(max(sec, 0) * float64(time.Second)).Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func init() {
	playCmd.Flags().BoolVarP(&playTUI, "tui", "t", false, "use the interactive player (default when stdout is a terminal)")
	playCmd.Flags().BoolVar(&playPlain, "plain", false, "print progress instead of starting the player")
}
