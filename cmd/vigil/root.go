package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/esimov/vigil/internal/config"
	"github.com/esimov/vigil/internal/log"
	"github.com/esimov/vigil/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// cfg is shared by the subcommands. The flags are bound to its fields.
	cfg     = config.Default()
	envFile string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:           "vigil",
	Short:         "Drowsiness and color detection toolkit",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd.Flags())
	},
}

// loadConfig reads the environment settings, then applies the flags set
// explicitly on the command line over them.
func loadConfig(flags *pflag.FlagSet) error {
	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	loaded, err := config.Load(envFile)
	if err != nil {
		return err
	}
	cfg = loaded

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("invalid --%s flag: %w", name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err = log.Init(log.Options{
		Level:    cfg.LogLevel,
		File:     cfg.LogFile,
		NoColors: noColor,
	})
	return err
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.SetHelpTemplate(fmt.Sprintf(HelpBanner, Version) + "\n" + rootCmd.HelpTemplate())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, utils.DecorateText(err.Error(), utils.ErrorMessage))
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env", ".env", "Environment file with VIGIL_* settings")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Rotating log file")
	flags.BoolVar(&noColor, "no-color", false, "Disable the colored log output")
}

// thresholdFlags registers the monitoring thresholds shared by the monitor and ear commands.
func thresholdFlags(flags *pflag.FlagSet) {
	flags.Float64Var(&cfg.EAR, "ear", cfg.EAR, "Eye aspect ratio below which an eye is closed")
	flags.IntVar(&cfg.Early, "early", cfg.Early, "Closed frames raising the early warning")
	flags.IntVar(&cfg.Confirm, "confirm", cfg.Confirm, "Closed frames confirming sleep")
	flags.IntVar(&cfg.MinEyes, "min-eyes", cfg.MinEyes, "Detected eyes needed to consider the eyes open")
	flags.StringVar(&cfg.NoFace, "no-face", cfg.NoFace, "Handling of frames without a face (capped, closed, warn)")
}

// soundFlags registers the alert sound settings.
func soundFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfg.Player, "player", cfg.Player, "Audio player command (default: first one found)")
	flags.StringVar(&cfg.EarlyClip, "early-clip", cfg.EarlyClip, "Audio clip played on early warning")
	flags.StringVar(&cfg.SleepClip, "sleep-clip", cfg.SleepClip, "Audio clip played on confirmed sleep")
}

// tintFlags registers the composition of the sleep tint over the annotated frames.
func tintFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfg.TintOp, "tint-op", cfg.TintOp, "Composite operation of the sleep tint (src_over, src_atop, xor...)")
	flags.StringVar(&cfg.TintMode, "tint-mode", cfg.TintMode, "Blend mode of the sleep tint (normal, darken, lighten, multiply, screen, overlay)")
}

// cascadeFlags registers the detector cascade files.
func cascadeFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfg.FaceCascade, "face-cascade", cfg.FaceCascade, "Face detection cascade file")
	flags.StringVar(&cfg.PuplocCascade, "puploc-cascade", cfg.PuplocCascade, "Pupil localization cascade file")
}
