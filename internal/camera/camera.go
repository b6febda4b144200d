// Package camera grabs frames from a video capture device through OpenCV.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// ErrUnavailable is returned when the capture device cannot be opened or stops delivering frames.
var ErrUnavailable = errors.New("camera unavailable")

// Options holds the optional capture settings. Zero values keep the device defaults.
type Options struct {
	Width  int
	Height int
}

// Camera is an opened capture device.
type Camera struct {
	mu     sync.Mutex
	source string
	vc     *gocv.VideoCapture
	mat    gocv.Mat
}

// Open opens the capture source. A numeric source selects a camera device index,
// anything else is passed to OpenCV as a file name or stream URL.
func Open(source string, opts Options) (*Camera, error) {
	var dev any = source
	if idx, err := strconv.Atoi(source); err == nil {
		dev = idx
	}

	vc, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, source)
	}

	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}

	return &Camera{
		source: source,
		vc:     vc,
		mat:    gocv.NewMat(),
	}, nil
}

// Read grabs the next frame.
func (c *Camera) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil, fmt.Errorf("%w: %s is closed", ErrUnavailable, c.source)
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("%w: no frame from %s", ErrUnavailable, c.source)
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("could not convert the frame: %w", err)
	}
	return img, nil
}

// Frames streams the captured frames until the context is cancelled or the device fails.
// The first read error is sent on the error channel and the frames channel is closed.
func (c *Camera) Frames(ctx context.Context) (<-chan image.Image, <-chan error) {
	frames := make(chan image.Image)
	errc := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errc)

		for {
			img, err := c.Read()
			if err != nil {
				errc <- err
				return
			}

			select {
			case <-ctx.Done():
				return
			case frames <- img:
			}
		}
	}()
	return frames, errc
}

// Close releases the capture device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.mat.Close()
	c.vc = nil

	return err
}
