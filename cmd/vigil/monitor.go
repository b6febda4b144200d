package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/esimov/vigil"
	"github.com/esimov/vigil/internal/camera"
	"github.com/esimov/vigil/internal/log"
	"github.com/esimov/vigil/internal/preview"
	"github.com/esimov/vigil/utils"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var monitorOpts struct {
	video   string
	width   int
	height  int
	preview bool
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the camera feed and raise an alert when the eyes stay closed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	flags := monitorCmd.Flags()
	flags.IntVar(&cfg.Camera, "camera", cfg.Camera, "Camera device index")
	flags.StringVar(&monitorOpts.video, "video", "", "Video file used instead of the camera")
	flags.IntVar(&monitorOpts.width, "width", 0, "Requested capture width")
	flags.IntVar(&monitorOpts.height, "height", 0, "Requested capture height")
	flags.Float64Var(&cfg.FPS, "fps", cfg.FPS, "Maximum number of processed frames per second")
	flags.StringVar(&cfg.LandmarkDir, "landmarks", cfg.LandmarkDir, "Facial landmark cascades directory, drawn on the preview")
	flags.BoolVar(&monitorOpts.preview, "preview", false, "Show the annotated frames in a window")
	thresholdFlags(flags)
	soundFlags(flags)
	tintFlags(flags)
	cascadeFlags(flags)

	rootCmd.AddCommand(monitorCmd)
}

// scanner finds the faces of a frame and summarizes them into an eye reading.
type scanner interface {
	Scan(image.Image) ([]vigil.Face, vigil.EyeReading)
}

// watcher runs the frames through the detector and the monitoring session.
type watcher struct {
	monitor *vigil.Monitor
	scanner scanner
	limiter *rate.Limiter
	tint    vigil.Tint
	out     io.Writer
	// show receives the annotated frames when the preview is enabled.
	show func(img image.Image, status vigil.Status, caption string)

	status  vigil.Status
	printed bool
}

// run consumes the frames until the source is exhausted or the context is cancelled.
// A capture error halts the loop after a single warning.
func (w *watcher) run(ctx context.Context, frames <-chan image.Image, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn(log.Fields{"err": err}, "camera unavailable, monitoring stopped")
			return err
		case img, ok := <-frames:
			if !ok {
				// The capture error is queued before both channels are closed.
				if errs != nil {
					select {
					case err, ok := <-errs:
						if ok {
							log.Warn(log.Fields{"err": err}, "camera unavailable, monitoring stopped")
							return err
						}
					default:
					}
				}
				return nil
			}
			if !w.limiter.Allow() {
				continue
			}
			w.process(img)
		}
	}
}

// process observes a single frame.
func (w *watcher) process(img image.Image) vigil.Verdict {
	faces, reading := w.scanner.Scan(img)
	v := w.monitor.Observe(reading)
	status := vigil.StatusOf(v, w.monitor.Config().Thresholds)

	if !w.printed || status != w.status {
		fmt.Fprintf(w.out, "%s frame %-6d %s\n",
			time.Now().Format("15:04:05"),
			v.Frame,
			utils.DecorateText(status.String(), statusMessage(status)),
		)
		w.status = status
		w.printed = true
	}
	if v.Alert != vigil.Normal {
		log.Warn(log.Fields{
			"frame":   v.Frame,
			"counter": v.Counter,
			"alert":   v.Alert.String(),
		}, "drowsiness alert")
	}

	if w.show != nil {
		caption := fmt.Sprintf("closed frames: %d", v.Counter)
		w.show(vigil.Annotate(img, faces, status, w.tint), status, caption)
	}
	return v
}

// summary prints the session counters.
func (w *watcher) summary(elapsed time.Duration) {
	st := w.monitor.Stats()
	fmt.Fprintf(w.out, "\nProcessed %s frames in %s: %d closed, %d without face, %d early warnings, %d sleep alerts\n",
		utils.DecorateText(strconv.FormatUint(st.Frames, 10), utils.SuccessMessage),
		utils.FormatTime(elapsed),
		st.ClosedFrames, st.NoFaceFrames, st.EarlyAlerts, st.SleepAlerts,
	)
}

func statusMessage(s vigil.Status) utils.MessageType {
	switch s {
	case vigil.StatusClosing:
		return utils.WarningMessage
	case vigil.StatusSleep:
		return utils.ErrorMessage
	case vigil.StatusNoFace:
		return utils.StatusMessage
	default:
		return utils.SuccessMessage
	}
}

func runMonitor(ctx context.Context, out io.Writer) error {
	det, err := vigil.NewCascadeDetector(cfg.FaceCascade, cfg.PuplocCascade, vigil.DefaultDetectorParams())
	if err != nil {
		return err
	}
	if cfg.LandmarkDir != "" && monitorOpts.preview {
		if err := det.WithLandmarks(cfg.LandmarkDir); err != nil {
			return err
		}
	}

	mcfg, err := cfg.Monitor()
	if err != nil {
		return err
	}
	tint, err := cfg.Tint()
	if err != nil {
		return err
	}
	sound := vigil.NewSoundNotifier(cfg.Player, cfg.Clips(), log.Logger())
	mon, err := vigil.NewMonitor(mcfg, sound)
	if err != nil {
		return err
	}

	source := strconv.Itoa(cfg.Camera)
	if monitorOpts.video != "" {
		source = monitorOpts.video
	}
	cam, err := camera.Open(source, camera.Options{
		Width:  monitorOpts.width,
		Height: monitorOpts.height,
	})
	if err != nil {
		return err
	}
	defer cam.Close()

	log.Info(log.Fields{
		"session": mon.ID,
		"source":  source,
		"fps":     cfg.FPS,
	}, "monitoring started")

	w := &watcher{
		monitor: mon,
		scanner: det,
		limiter: rate.NewLimiter(rate.Limit(cfg.FPS), 1),
		tint:    tint,
		out:     out,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	frames, errs := cam.Frames(ctx)
	now := time.Now()

	if !monitorOpts.preview {
		err := w.run(ctx, frames, errs)
		w.summary(time.Since(now))
		if errors.Is(err, camera.ErrUnavailable) {
			return nil
		}
		return err
	}

	width, height := monitorOpts.width, monitorOpts.height
	win := preview.New("vigil", width, height)
	w.show = win.Update

	// The window owns the main goroutine from here on, closing it cancels the monitoring.
	go func() {
		if err := win.Run(); err != nil {
			log.Error(log.Fields{"err": err}, "preview window error")
		}
		cancel()
	}()
	go func() {
		err := w.run(ctx, frames, errs)
		w.summary(time.Since(now))
		cam.Close()
		if err != nil && !errors.Is(err, camera.ErrUnavailable) {
			fmt.Fprintln(os.Stderr, utils.DecorateText(err.Error(), utils.ErrorMessage))
			os.Exit(1)
		}
		os.Exit(0)
	}()
	preview.Main()

	return nil
}
