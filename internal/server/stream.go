package server

import (
	"bytes"
	"time"

	"github.com/esimov/vigil"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// frameReply is sent back for every processed frame.
type frameReply struct {
	vigil.Verdict
	Status string       `json:"status"`
	Faces  []vigil.Face `json:"faces,omitempty"`
}

type droppedReply struct {
	Dropped bool `json:"dropped"`
}

type errorReply struct {
	Error string `json:"error"`
}

// upgrade accepts only the WebSocket upgrades of existing sessions.
func (s *Server) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}
	c.Locals("session", sess)
	return c.Next()
}

// stream feeds the session with the frames received over the WebSocket.
// Binary messages carry encoded images, text messages carry JSON landmark frames.
func (s *Server) stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sess, ok := c.Locals("session").(*session)
		if !ok {
			return
		}
		log := s.log.WithField("session", sess.monitor.ID)
		log.Info("frame stream connected")
		defer log.Info("frame stream disconnected")

		for {
			if err := c.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				log.Errorf("error setting read deadline: %v", err)
				return
			}

			mt, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("frame stream error: %v", err)
				}
				return
			}

			reply := s.processFrame(sess, mt, msg)
			if err := writeReply(c, reply); err != nil {
				log.Errorf("error writing the frame reply: %v", err)
				return
			}
			if sess.isClosed() {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
				if err := c.WriteMessage(websocket.CloseMessage, msg); err != nil {
					log.Warnf("error closing the frame stream: %v", err)
				}
				return
			}
		}
	})
}

// processFrame runs a single frame message through the session.
func (s *Server) processFrame(sess *session, mt int, msg []byte) any {
	if sess.isClosed() {
		return errorReply{Error: ErrSessionNotFound.Error()}
	}
	if !sess.limiter.Allow() {
		return droppedReply{Dropped: true}
	}

	var (
		reading vigil.EyeReading
		faces   []vigil.Face
	)

	switch mt {
	case websocket.BinaryMessage:
		if s.scanner == nil {
			return errorReply{Error: "face detection is not available"}
		}
		img, err := vigil.DecodeImage(bytes.NewReader(msg))
		if err != nil {
			return errorReply{Error: err.Error()}
		}
		faces, reading = s.scanner.Scan(img)
	case websocket.TextMessage:
		frame, err := vigil.ParseLandmarkFrame(msg)
		if err != nil {
			return errorReply{Error: err.Error()}
		}
		if reading, err = frame.Reading(); err != nil {
			return errorReply{Error: err.Error()}
		}
	default:
		return errorReply{Error: "unsupported message type"}
	}

	v, err := sess.observe(reading)
	if err != nil {
		return errorReply{Error: err.Error()}
	}
	if v.Alert != vigil.Normal {
		s.log.WithFields(logrus.Fields{
			"session": sess.monitor.ID,
			"frame":   v.Frame,
			"counter": v.Counter,
		}).Warnf("alert raised: %s", v.Alert)
	}

	return frameReply{
		Verdict: v,
		Status:  vigil.StatusOf(v, sess.monitor.Config().Thresholds).String(),
		Faces:   faces,
	}
}

func writeReply(c *websocket.Conn, reply any) error {
	data, err := jsoniter.Marshal(reply)
	if err != nil {
		return err
	}
	if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}
