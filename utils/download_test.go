package utils

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	assert.NoError(t, err)
	return buf.Bytes()
}

func TestUtils_ShouldDownloadImage(t *testing.T) {
	assert := assert.New(t)
	data := pngBytes(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	f, err := DownloadImage(context.Background(), srv.URL+"/sample.png")
	assert.NoError(err)
	defer os.Remove(f.Name())
	defer f.Close()

	assert.True(strings.HasPrefix(f.Name(), os.TempDir()))

	var got bytes.Buffer
	_, err = got.ReadFrom(f)
	assert.NoError(err)
	assert.Equal(data, got.Bytes())
}

func TestUtils_ShouldRejectNonImageDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>not an image</body></html>"))
	}))
	defer srv.Close()

	f, err := DownloadImage(context.Background(), srv.URL)
	if f != nil {
		f.Close()
		os.Remove(f.Name())
	}
	assert.Error(t, err)
}

func TestUtils_ShouldFailOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DownloadImage(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "404")
}

func TestUtils_ShouldBeValidUrl(t *testing.T) {
	assert := assert.New(t)

	assert.True(IsValidUrl("https://github.com/esimov/vigil/"))
	assert.False(IsValidUrl("testdata/sample.jpg"))
	assert.False(IsValidUrl("-"))
}

func TestUtils_ShouldDetectValidFileType(t *testing.T) {
	ftype, err := DetectContentType(bytes.NewReader(pngBytes(t)))
	assert.NoError(t, err)
	assert.Equal(t, "image/png", ftype)
}
