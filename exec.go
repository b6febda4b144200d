package vigil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/esimov/vigil/utils"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// validExtensions are the image types picked up when walking a directory.
var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"}

// Ops describes the source of a color classification batch.
type Ops struct {
	// Src is an image file, a directory, an URL or the pipe name.
	Src      string
	PipeName string
	Workers  int
	// Progress receives the progress bar output. Nil disables it.
	Progress io.Writer
}

// ColorResult holds the classification outcome of a single image.
type ColorResult struct {
	Path   string       `json:"path"`
	Colors []ColorCount `json:"colors,omitempty"`
	Err    error        `json:"-"`
	// Error is the message of Err, kept for the JSON output.
	Error string `json:"error,omitempty"`
}

func failedResult(path string, err error) ColorResult {
	return ColorResult{Path: path, Err: err, Error: err.Error()}
}

// Classify runs the classifier against the source. Directories are walked
// recursively and their images are classified concurrently.
// The results are ordered by path.
func (op *Ops) Classify(ctx context.Context, c *Classifier) ([]ColorResult, error) {
	if utils.IsValidUrl(op.Src) {
		f, err := utils.DownloadImage(ctx, op.Src)
		if f != nil {
			defer os.Remove(f.Name())
			defer f.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load the source image: %w", err)
		}
		return []ColorResult{op.classifyReader(c, op.Src, f)}, nil
	}

	if op.Src == op.PipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, errors.New("`-` should be used with a pipe for stdin")
		}
		return []ColorResult{op.classifyReader(c, op.PipeName, os.Stdin)}, nil
	}

	fi, err := os.Stat(op.Src)
	if err != nil {
		return nil, fmt.Errorf("failed to load the source image: %w", err)
	}

	switch mode := fi.Mode(); {
	case mode.IsDir():
		return op.classifyDir(ctx, c)
	case mode.IsRegular() || mode&os.ModeNamedPipe != 0:
		f, err := os.Open(op.Src)
		if err != nil {
			return nil, fmt.Errorf("unable to open the source file: %w", err)
		}
		defer f.Close()
		return []ColorResult{op.classifyReader(c, op.Src, f)}, nil
	}
	return nil, fmt.Errorf("%s is not a regular file or directory", op.Src)
}

// classifyDir dispatches the directory images to a pool of workers.
func (op *Ops) classifyDir(ctx context.Context, c *Classifier) ([]ColorResult, error) {
	var wg sync.WaitGroup

	workers := op.Workers
	// Limit the concurrently running workers to maxWorkers.
	if workers <= 0 || workers > maxWorkers {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan ColorResult)
	paths, errc := walkDir(ctx, op.Src, validExtensions)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			op.consumer(ctx, c, ch, paths)
		}()
	}

	// Close the channel after the values are consumed.
	go func() {
		defer close(ch)
		wg.Wait()
	}()

	var bar *progressbar.ProgressBar
	if op.Progress != nil {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Classifying"),
			progressbar.OptionSetWriter(op.Progress),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var results []ColorResult
	for res := range ch {
		results = append(results, res)
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if err := <-errc; err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	return results, nil
}

// consumer reads the path names from the paths channel and classifies the images.
func (op *Ops) consumer(
	ctx context.Context,
	c *Classifier,
	res chan<- ColorResult,
	paths <-chan string,
) {
	for src := range paths {
		var r ColorResult
		f, err := os.Open(src)
		if err != nil {
			r = failedResult(src, err)
		} else {
			r = op.classifyReader(c, src, f)
			f.Close()
		}

		select {
		case <-ctx.Done():
			return
		case res <- r:
		}
	}
}

func (op *Ops) classifyReader(c *Classifier, name string, r io.Reader) ColorResult {
	img, err := DecodeImage(r)
	if err != nil {
		return failedResult(name, err)
	}
	return ColorResult{Path: name, Colors: c.Classify(img).Ranked()}
}

// walkDir starts a new goroutine to walk the specified directory tree
// in recursive manner and sends the path of each supported file to a new channel.
// It finishes in case the context is cancelled.
func walkDir(ctx context.Context, src string, srcExts []string) (<-chan string, <-chan error) {
	pathChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		// Close the paths channel after Walk returns.
		defer close(pathChan)

		errChan <- filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !isValidExtension(strings.ToLower(filepath.Ext(d.Name())), srcExts) {
				return nil
			}

			select {
			case <-ctx.Done():
				return errors.New("directory walk cancelled")
			case pathChan <- path:
			}
			return nil
		})
	}()
	return pathChan, errChan
}

// isValidExtension checks for the supported extensions.
func isValidExtension(ext string, extensions []string) bool {
	for _, ex := range extensions {
		if ex == ext {
			return true
		}
	}
	return false
}
