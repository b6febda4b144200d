package vigil

import (
	"context"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// playTimeout bounds a single clip playback.
const playTimeout = 30 * time.Second

// player describes an external command able to play an audio file verbatim.
type player struct {
	name string
	args []string
}

// knownPlayers lists the audio players probed in order of preference.
var knownPlayers = []player{
	{name: "ffplay", args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	{name: "mpg123", args: []string{"-q"}},
	{name: "paplay"},
	{name: "aplay", args: []string{"-q"}},
}

// runFn executes the player command. It is replaced in tests.
type runFn func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// SoundNotifier plays an audio clip for each alert level.
// Playback is fire and forget: Notify returns immediately, overlapping
// alerts play overlapping sounds and playback failures are never surfaced.
type SoundNotifier struct {
	mu     sync.RWMutex
	clips  map[Alert]string
	player player
	run    runFn
	log    logrus.FieldLogger
}

// NewSoundNotifier creates a SoundNotifier playing the clips through the given command.
// An empty command selects the first audio player found on the system.
func NewSoundNotifier(command string, clips map[Alert]string, log logrus.FieldLogger) *SoundNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &SoundNotifier{
		clips: make(map[Alert]string, len(clips)),
		run:   execRun,
		log:   log,
	}
	for lvl, path := range clips {
		if path != "" {
			s.clips[lvl] = path
		}
	}

	if command != "" {
		s.player = player{name: command}
	} else {
		s.player = lookupPlayer()
	}
	return s
}

// lookupPlayer returns the first known player available in PATH.
func lookupPlayer() player {
	if runtime.GOOS == "darwin" {
		return player{name: "afplay"}
	}
	for _, p := range knownPlayers {
		if _, err := exec.LookPath(p.name); err == nil {
			return p
		}
	}
	return player{}
}

// SetClip replaces the clip played for the alert level. An empty path removes it.
func (s *SoundNotifier) SetClip(lvl Alert, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		delete(s.clips, lvl)
		return
	}
	s.clips[lvl] = path
}

// Clip returns the clip registered for the alert level.
func (s *SoundNotifier) Clip(lvl Alert) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, ok := s.clips[lvl]
	return path, ok
}

// Notify starts the playback of the clip registered for the alert level, if any.
func (s *SoundNotifier) Notify(lvl Alert) {
	path, ok := s.Clip(lvl)
	if !ok || s.player.name == "" {
		return
	}

	args := append(append([]string{}, s.player.args...), path)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()

		if err := s.run(ctx, s.player.name, args...); err != nil {
			s.log.WithFields(logrus.Fields{
				"alert":  lvl.String(),
				"clip":   path,
				"player": s.player.name,
			}).Debugf("sound playback failed: %v", err)
		}
	}()
}
