package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/esimov/vigil"
	"github.com/esimov/vigil/internal/log"
	"github.com/esimov/vigil/utils"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var earOpts struct {
	json  bool
	sound bool
}

var earCmd = &cobra.Command{
	Use:   "ear [file]",
	Short: "Replay a stream of face mesh frames and print one verdict per frame",
	Long: `Reads JSON face mesh frames, one JSON value per frame, from the file or from stdin
and runs them through a monitoring session. Use "-" or no argument for stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := pipeName
		if len(args) > 0 {
			src = args[0]
		}

		var r io.Reader
		if src == pipeName {
			if term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("`-` should be used with a pipe for stdin")
			}
			r = os.Stdin
		} else {
			f, err := os.Open(src)
			if err != nil {
				return fmt.Errorf("unable to open the landmark file: %w", err)
			}
			defer f.Close()
			r = f
		}

		mcfg, err := cfg.Monitor()
		if err != nil {
			return err
		}
		notifiers := vigil.Notifiers{alertPrinter(cmd.ErrOrStderr())}
		if earOpts.sound {
			notifiers = append(notifiers, vigil.NewSoundNotifier(cfg.Player, cfg.Clips(), log.Logger()))
		}
		mon, err := vigil.NewMonitor(mcfg, notifiers)
		if err != nil {
			return err
		}

		return replay(cmd.Context(), r, cmd.OutOrStdout(), mon, earOpts.json)
	},
}

func init() {
	flags := earCmd.Flags()
	flags.BoolVar(&earOpts.json, "json", false, "Print the verdicts as JSON lines")
	flags.BoolVar(&earOpts.sound, "sound", false, "Play the alert clips")
	thresholdFlags(flags)
	soundFlags(flags)

	rootCmd.AddCommand(earCmd)
}

// alertPrinter reports the raised alerts on w.
func alertPrinter(w io.Writer) vigil.Notifier {
	return vigil.NotifierFunc(func(a vigil.Alert) {
		msg := utils.WarningMessage
		if a == vigil.Confirmed {
			msg = utils.ErrorMessage
		}
		fmt.Fprintln(w, utils.DecorateText("alert: "+a.String(), msg))
	})
}

// replay feeds the landmark frames read from r to the monitor and writes a verdict per frame.
func replay(ctx context.Context, r io.Reader, out io.Writer, mon *vigil.Monitor, asJSON bool) error {
	dec := vigil.NewLandmarkDecoder(r)

	var (
		enc *jsoniter.Encoder
		tw  *tabwriter.Writer
	)
	if asJSON {
		enc = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
	} else {
		tw = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "FRAME\tSTATE\tEAR\tCOUNTER\tALERT")
		defer tw.Flush()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		reading, err := frame.Reading()
		if err != nil {
			return fmt.Errorf("frame #%d: %w", mon.Stats().Frames+1, err)
		}
		v := mon.Observe(reading)

		if asJSON {
			if err := enc.Encode(v); err != nil {
				return err
			}
			continue
		}

		ear := "-"
		if v.State == vigil.EyesOpen || v.State == vigil.EyesClosed {
			ear = fmt.Sprintf("%.3f", v.EAR)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", v.Frame, v.State, ear, v.Counter, v.Alert)
	}
}
