package vigil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// supportedClips lists the accepted audio clip extensions.
var supportedClips = []string{".mp3", ".wav", ".ogg"}

// SaveClip stores an uploaded audio clip verbatim in a temporary file
// and returns its path. The caller is responsible for removing it.
func SaveClip(r io.Reader, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !isValidExtension(ext, supportedClips) {
		return "", fmt.Errorf("%v audio clip type not supported", ext)
	}

	f, err := os.CreateTemp("", "vigil-clip-*"+ext)
	if err != nil {
		return "", fmt.Errorf("unable to create temporary file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("unable to copy the audio clip: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("could not close the audio clip: %w", err)
	}
	return f.Name(), nil
}

// RemoveClip deletes a clip created by SaveClip. Only files in the temporary directory are removed.
func RemoveClip(path string) error {
	if path == "" {
		return nil
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}
	tmp, err := filepath.Abs(os.TempDir())
	if err != nil {
		return err
	}
	if dir != tmp {
		return fmt.Errorf("refusing to remove %s: not a temporary clip", path)
	}
	return os.Remove(path)
}
