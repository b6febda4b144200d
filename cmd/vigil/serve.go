package main

import (
	"github.com/esimov/vigil"
	"github.com/esimov/vigil/internal/log"
	"github.com/esimov/vigil/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []server.Option{
			server.WithConfig(cfg),
			server.WithLogger(log.Logger()),
		}

		det, err := vigil.NewCascadeDetector(cfg.FaceCascade, cfg.PuplocCascade, vigil.DefaultDetectorParams())
		if err != nil {
			log.Warn(log.Fields{"err": err}, "face detection disabled, only face mesh frames are accepted")
		} else {
			opts = append(opts, server.WithScanner(det))
		}

		if cfg.Palette != "" {
			p, err := vigil.LoadPaletteFile(cfg.Palette)
			if err != nil {
				return err
			}
			opts = append(opts, server.WithPalette(p))
		}

		srv, err := server.New(opts...)
		if err != nil {
			return err
		}
		return srv.Run(cmd.Context())
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flags.Float64Var(&cfg.FrameRate, "frame-rate", cfg.FrameRate, "Frames per second accepted on each session stream")
	flags.IntVar(&cfg.FrameBurst, "frame-burst", cfg.FrameBurst, "Frame burst accepted on each session stream")
	flags.IntVar(&cfg.MaxUpload, "max-upload", cfg.MaxUpload, "Maximum request body size, in MB")
	flags.BoolVar(&cfg.PlaySounds, "play-sounds", cfg.PlaySounds, "Play the session alert clips on the host")
	flags.StringVar(&cfg.Palette, "palette", cfg.Palette, "YAML palette file replacing the built-in colors")
	thresholdFlags(flags)
	soundFlags(flags)
	cascadeFlags(flags)

	rootCmd.AddCommand(serveCmd)
}
