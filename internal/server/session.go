package server

import (
	"errors"
	"sync"
	"time"

	"github.com/esimov/vigil"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrSessionNotFound is returned for unknown or closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// session is a monitoring session fed over HTTP. Its frames are processed one at a time.
type session struct {
	mu      sync.Mutex
	monitor *vigil.Monitor
	limiter *rate.Limiter
	sound   *vigil.SoundNotifier
	// clips holds the uploaded temporary clips, by alert level.
	clips   map[vigil.Alert]string
	created time.Time
	last    vigil.Verdict
	// closed is set once the session is deleted, its open streams stop on their next frame.
	closed bool
}

// sessionInfo is the public view of a session.
type sessionInfo struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Config    sessionConfig  `json:"config"`
	Stats     vigil.Stats    `json:"stats"`
	Status    string         `json:"status"`
	Clips     []vigil.Alert  `json:"clips"`
	Last      *vigil.Verdict `json:"last,omitempty"`
}

func (s *session) info() sessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.monitor.Config()
	info := sessionInfo{
		ID:        s.monitor.ID,
		CreatedAt: s.created,
		Config:    configOf(cfg),
		Stats:     s.monitor.Stats(),
		Status:    vigil.StatusOf(s.last, cfg.Thresholds).String(),
		Clips:     []vigil.Alert{},
	}
	for _, lvl := range []vigil.Alert{vigil.EarlyWarning, vigil.Confirmed} {
		if _, ok := s.clips[lvl]; ok {
			info.Clips = append(info.Clips, lvl)
		}
	}
	if info.Stats.Frames > 0 {
		last := s.last
		info.Last = &last
	}
	return info
}

// observe feeds a reading to the session monitor.
func (s *session) observe(r vigil.EyeReading) (vigil.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vigil.Verdict{}, ErrSessionNotFound
	}
	s.last = s.monitor.Observe(r)
	return s.last, nil
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// setClip replaces the uploaded clip of an alert level and returns the previous one.
func (s *session) setClip(lvl vigil.Alert, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.clips[lvl]
	s.clips[lvl] = path
	if s.sound != nil {
		s.sound.SetClip(lvl, path)
	}
	return prev
}

// close marks the session closed and removes its temporary clips.
func (s *session) close(log logrus.FieldLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for lvl, path := range s.clips {
		if s.sound != nil {
			s.sound.SetClip(lvl, "")
		}
		if err := vigil.RemoveClip(path); err != nil {
			log.WithFields(logrus.Fields{
				"session": s.monitor.ID,
				"clip":    path,
			}).Warnf("could not remove the session clip: %v", err)
		}
		delete(s.clips, lvl)
	}
}

// sessions is the table of the open sessions.
type sessions struct {
	mu    sync.RWMutex
	table map[string]*session
}

func newSessions() *sessions {
	return &sessions{table: make(map[string]*session)}
}

func (ss *sessions) add(s *session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.table[s.monitor.ID] = s
}

func (ss *sessions) get(id string) (*session, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	s, ok := ss.table[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// remove deletes the session from the table and returns it.
func (ss *sessions) remove(id string) (*session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s, ok := ss.table[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(ss.table, id)
	return s, nil
}

func (ss *sessions) len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.table)
}

func (ss *sessions) closeAll(log logrus.FieldLogger) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	for id, s := range ss.table {
		s.close(log)
		delete(ss.table, id)
	}
}
