package vigil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playCall struct {
	name string
	args []string
}

func fakePlayer(s *SoundNotifier, err error) <-chan playCall {
	calls := make(chan playCall, 8)
	s.run = func(ctx context.Context, name string, args ...string) error {
		calls <- playCall{name: name, args: args}
		return err
	}
	return calls
}

func TestSoundNotifier_ShouldPlayClipPerAlert(t *testing.T) {
	assert := assert.New(t)
	s := NewSoundNotifier("player", map[Alert]string{
		EarlyWarning: "early.mp3",
		Confirmed:    "sleep.mp3",
	}, nil)
	calls := fakePlayer(s, nil)

	s.Notify(EarlyWarning)
	select {
	case c := <-calls:
		assert.Equal("player", c.name)
		assert.Equal([]string{"early.mp3"}, c.args)
	case <-time.After(time.Second):
		t.Fatal("the clip should have been played")
	}

	s.Notify(Confirmed)
	c := <-calls
	assert.Equal([]string{"sleep.mp3"}, c.args)
}

func TestSoundNotifier_ShouldIgnoreMissingClips(t *testing.T) {
	s := NewSoundNotifier("player", map[Alert]string{Confirmed: ""}, nil)
	calls := fakePlayer(s, nil)

	s.Notify(Normal)
	s.Notify(Confirmed)

	select {
	case c := <-calls:
		t.Fatalf("unexpected playback: %v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSoundNotifier_ShouldSwallowPlaybackErrors(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	s := NewSoundNotifier("player", map[Alert]string{Confirmed: "sleep.mp3"}, log)
	calls := fakePlayer(s, errors.New("no audio device"))

	s.Notify(Confirmed)
	<-calls

	assert.Eventually(t, func() bool {
		e := hook.LastEntry()
		return e != nil && strings.Contains(e.Message, "no audio device")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "confirmed", hook.LastEntry().Data["alert"])
}

func TestSoundNotifier_ShouldReplaceClips(t *testing.T) {
	assert := assert.New(t)
	s := NewSoundNotifier("player", nil, nil)

	_, ok := s.Clip(EarlyWarning)
	assert.False(ok)

	s.SetClip(EarlyWarning, "beep.wav")
	path, ok := s.Clip(EarlyWarning)
	assert.True(ok)
	assert.Equal("beep.wav", path)

	s.SetClip(EarlyWarning, "")
	_, ok = s.Clip(EarlyWarning)
	assert.False(ok)
}

func TestClip_ShouldSaveVerbatim(t *testing.T) {
	assert := assert.New(t)
	data := []byte("ID3\x03\x00fake mp3 payload")

	path, err := SaveClip(bytes.NewReader(data), "MP3")
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Equal(".mp3", filepath.Ext(path))
	got, err := os.ReadFile(path)
	assert.NoError(err)
	assert.Equal(data, got)

	assert.NoError(RemoveClip(path))
	_, err = os.Stat(path)
	assert.True(os.IsNotExist(err))
}

func TestClip_ShouldRejectUnsupportedTypes(t *testing.T) {
	_, err := SaveClip(strings.NewReader("MZ"), ".exe")
	assert.Error(t, err)
}

func TestClip_ShouldNotRemoveForeignFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.Error(t, RemoveClip(path))
	assert.FileExists(t, path)
	assert.NoError(t, RemoveClip(""))
}
