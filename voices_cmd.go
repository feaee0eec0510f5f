package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	voicesGender   string
	previewRefresh bool
	previewSave    string
	previewNoPlay  bool
	cacheClear     bool

	voicesCmd = &cobra.Command{
		Use:     "voices",
		Aliases: []string{"voice"},
		Short:   "Browse and preview voices",
		Args:    cobra.NoArgs,
		RunE:    runVoicesList,
	}

	voicesListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all voices",
		Args:    cobra.NoArgs,
		RunE:    runVoicesList,
	}

	voicesSearchCmd = &cobra.Command{
		Use:     "search QUERY",
		Short:   "Fuzzy search voices by name, tag or description",
		Example: paragraph("nebula voices search 叙事\nnebula voices search zeph"),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res := ttypes.SearchVoices(strings.Join(args, " "))
			if len(res) == 0 {
				return fmt.Errorf("no voice matches %q", strings.Join(args, " "))
			}
			renderVoices(os.Stdout, res)
			return nil
		},
	}

	voicesShowCmd = &cobra.Command{
		Use:   "show VOICE",
		Short: "Describe a voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, ok := ttypes.LookupVoice(args[0])
			if !ok {
				_, err := ttypes.ParseVoice(args[0])
				return err
			}
			fmt.Println(keyword(v.Name), subtle(string(v.Gender)))
			fmt.Println(strings.Join(v.Tags, " · "))
			fmt.Println(v.Description)
			return nil
		},
	}

	voicesPreviewCmd = &cobra.Command{
		Use:   "preview VOICE",
		Short: "Hear a voice read a short sample",
		Long: paragraph(fmt.Sprintf("\n%s a voice. Samples are cached, so each voice is only "+
			"synthesized once unless --refresh is given.", keyword("Preview"))),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			voice, err := ttypes.ParseVoice(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(ctx, !previewNoPlay)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if previewRefresh {
				if err := a.previews.DeletePreview(voice); err != nil {
					return err
				}
			}

			p, err := a.synth.PreviewVoice(ctx, voice)
			if err != nil {
				return explain(err)
			}
			source := "synthesized"
			if p.Cached {
				source = "cached"
			}
			fmt.Fprintf(os.Stderr, "%s: %s %s\n", keyword(string(voice)), ttypes.PreviewText, subtle(fmt.Sprintf("(%s, %s)", source, humanize.Bytes(uint64(len(p.WAV)))))) //nolint:gosec

			if previewSave != "" {
				if err := os.WriteFile(previewSave, p.WAV, 0o644); err != nil { //nolint:gosec
					return fmt.Errorf("unable to write %s: %w", previewSave, err)
				}
			}
			if previewNoPlay {
				return nil
			}

			// previews play at neutral settings
			a.engine.SetParams(audio.DefaultParams())
			a.engine.Load(p.Buffer)
			return playUntilEnd(ctx, a.engine, os.Stderr)
		},
	}
)

var voicesCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show or clear the preview cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		if cacheClear {
			if err := a.previews.Clear(); err != nil {
				return fmt.Errorf("unable to clear cache: %w", err)
			}
			fmt.Fprintln(os.Stderr, "Cleared preview cache")
			return nil
		}

		expired := a.previews.Cleanup()
		st := a.previews.Stats()
		fmt.Printf("Memory: %d previews, %s of %s\n", st.Memory.Items, humanize.Bytes(uint64(st.Memory.Size)), humanize.Bytes(uint64(st.Memory.Capacity))) //nolint:gosec
		fmt.Printf("Disk:   %d previews, %s of %s\n", st.Disk.Items, humanize.Bytes(uint64(st.Disk.Size)), humanize.Bytes(uint64(st.Disk.Capacity)))       //nolint:gosec
		if expired > 0 {
			fmt.Printf("Removed %d expired\n", expired)
		}
		return nil
	},
}

func runVoicesList(*cobra.Command, []string) error {
	voices := ttypes.Voices()
	if voicesGender != "" {
		var filtered []ttypes.VoiceMetadata
		for _, v := range voices {
			if strings.EqualFold(string(v.Gender), voicesGender) {
				filtered = append(filtered, v)
			}
		}
		voices = filtered
	}
	renderVoices(os.Stdout, voices)
	return nil
}

func renderVoices(w io.Writer, voices []ttypes.VoiceMetadata) {
	for _, v := range voices {
		fmt.Fprintf(w, "%s %s %s  %s\n",
			fitWidth(v.Name, 14),
			fitWidth(string(v.Gender), 6),
			fitWidth(strings.Join(v.Tags, " "), 20),
			v.Description,
		)
	}
}

func init() {
	voicesCmd.PersistentFlags().StringVarP(&voicesGender, "gender", "g", "", "only list Female or Male voices")
	voicesPreviewCmd.Flags().BoolVar(&previewRefresh, "refresh", false, "synthesize again instead of using the cache")
	voicesPreviewCmd.Flags().StringVarP(&previewSave, "output", "o", "", "also write the sample to a WAV file")
	voicesPreviewCmd.Flags().BoolVar(&previewNoPlay, "no-play", false, "do not play the sample")

	voicesCacheCmd.Flags().BoolVar(&cacheClear, "clear", false, "remove every cached preview")

	voicesCmd.AddCommand(voicesListCmd, voicesSearchCmd, voicesShowCmd, voicesPreviewCmd, voicesCacheCmd)
}
