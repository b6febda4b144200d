package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/esimov/vigil"
	"github.com/esimov/vigil/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fakeScanner reports a single face with the configured number of eyes.
type fakeScanner struct {
	eyes int
}

func (f fakeScanner) Scan(img image.Image) ([]vigil.Face, vigil.EyeReading) {
	face := vigil.Face{Rect: image.Rect(10, 10, 60, 60), Q: 12}
	for i := 0; i < f.eyes; i++ {
		face.Eyes = append(face.Eyes, vigil.Point{X: float64(25 + 20*i), Y: 30})
	}
	faces := []vigil.Face{face}
	return faces, vigil.Reading(faces)
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.FrameRate = 1000
	cfg.FrameBurst = 100

	srv, err := New(append([]Option{WithConfig(cfg), WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return srv
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 80, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target, field, filename string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(fiber.MethodPost, target, &body)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	return req
}

func doJSON(t *testing.T, srv *Server, req *http.Request, dst any) int {
	t.Helper()

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func createSession(t *testing.T, srv *Server, body string) sessionInfo {
	t.Helper()

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/sessions", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	var info sessionInfo
	require.Equal(t, fiber.StatusCreated, doJSON(t, srv, req, &info))
	require.NotEmpty(t, info.ID)
	return info
}

func TestServer_ShouldRequireLogger(t *testing.T) {
	_, err := New(WithConfig(config.Default()))
	assert.Error(t, err)

	_, err = New(WithLogger(logrus.New()), WithPalette(nil))
	assert.Error(t, err)

	cfg := config.Default()
	cfg.TintOp = "behind"
	_, err = New(WithConfig(cfg), WithLogger(logrus.New()))
	assert.Error(t, err)
}

func TestServer_ShouldReportHealth(t *testing.T) {
	srv := newTestServer(t)

	var res map[string]any
	code := doJSON(t, srv, httptest.NewRequest(fiber.MethodGet, "/healthz", nil), &res)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, false, res["detector"])
}

func TestServer_ShouldClassifyColors(t *testing.T) {
	srv := newTestServer(t)

	var res struct {
		Colors  []vigil.ColorCount `json:"colors"`
		Sampled int                `json:"sampled"`
	}
	req := multipartRequest(t, "/api/v1/colors?stride=2", "image", "red.png", pngBytes(t, color.NRGBA{R: 255, A: 255}))
	code := doJSON(t, srv, req, &res)

	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 40*40, res.Sampled)
	require.Len(t, res.Colors, 1)
	assert.Equal(t, "red", res.Colors[0].Name)
	assert.InDelta(t, 1.0, res.Colors[0].Share, 1e-9)
}

func TestServer_ShouldRejectInvalidColorRequests(t *testing.T) {
	srv := newTestServer(t)
	img := pngBytes(t, color.NRGBA{B: 255, A: 255})

	var res map[string]string
	code := doJSON(t, srv, multipartRequest(t, "/api/v1/colors?mode=fuzzy", "image", "a.png", img), &res)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, res["error"], "fuzzy")

	code = doJSON(t, srv, multipartRequest(t, "/api/v1/colors?stride=0", "image", "a.png", img), nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code = doJSON(t, srv, multipartRequest(t, "/api/v1/colors", "file", "a.png", img), nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code = doJSON(t, srv, multipartRequest(t, "/api/v1/colors", "image", "a.txt", []byte("plain text")), nil)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, code)
}

func TestServer_ShouldDetectEyes(t *testing.T) {
	img := pngBytes(t, color.NRGBA{R: 200, G: 180, B: 160, A: 255})

	srv := newTestServer(t)
	code := doJSON(t, srv, multipartRequest(t, "/api/v1/eyes", "image", "f.png", img), nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)

	srv = newTestServer(t, WithScanner(fakeScanner{eyes: 2}))
	var res struct {
		Faces   []vigil.Face     `json:"faces"`
		Reading vigil.EyeReading `json:"reading"`
		State   string           `json:"state"`
	}
	code = doJSON(t, srv, multipartRequest(t, "/api/v1/eyes", "image", "f.png", img), &res)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Len(t, res.Faces, 1)
	assert.Equal(t, 2, res.Reading.EyesFound)
	assert.Equal(t, "open", res.State)

	srv = newTestServer(t, WithScanner(fakeScanner{eyes: 0}))
	code = doJSON(t, srv, multipartRequest(t, "/api/v1/eyes", "image", "f.png", img), &res)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "closed", res.State)
}

func TestServer_ShouldReturnAnnotatedFrame(t *testing.T) {
	srv := newTestServer(t, WithScanner(fakeScanner{eyes: 2}))

	req := multipartRequest(t, "/api/v1/eyes?annotate=true", "image", "f.png", pngBytes(t, color.White))
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get(fiber.HeaderContentType))

	img, err := vigil.DecodeImage(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 80, 80), img.Bounds())
}

func TestServer_ShouldManageSessions(t *testing.T) {
	srv := newTestServer(t)

	info := createSession(t, srv, "")
	assert.Equal(t, vigil.DefaultThresholds().Early, info.Config.Early)
	assert.Equal(t, "capped", info.Config.NoFace)
	assert.Equal(t, "ALERT", info.Status)

	custom := createSession(t, srv, `{"early_frames": 2, "confirm_frames": 4, "no_face": "warn"}`)
	assert.Equal(t, 2, custom.Config.Early)
	assert.Equal(t, 4, custom.Config.Confirm)
	assert.Equal(t, "warn", custom.Config.NoFace)

	var got sessionInfo
	code := doJSON(t, srv, httptest.NewRequest(fiber.MethodGet, "/api/v1/sessions/"+info.ID, nil), &got)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, info.ID, got.ID)

	code = doJSON(t, srv, httptest.NewRequest(fiber.MethodDelete, "/api/v1/sessions/"+info.ID, nil), nil)
	assert.Equal(t, fiber.StatusOK, code)

	var res map[string]string
	code = doJSON(t, srv, httptest.NewRequest(fiber.MethodGet, "/api/v1/sessions/"+info.ID, nil), &res)
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, ErrSessionNotFound.Error(), res["error"])

	code = doJSON(t, srv, httptest.NewRequest(fiber.MethodDelete, "/api/v1/sessions/"+info.ID, nil), nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestServer_ShouldRejectInvalidSessionConfig(t *testing.T) {
	srv := newTestServer(t)

	for name, body := range map[string]string{
		"early after confirm": `{"early_frames": 20, "confirm_frames": 10}`,
		"ear out of range":    `{"ear": 1.5}`,
		"unknown policy":      `{"no_face": "ignore"}`,
		"malformed":           `{"ear":`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, "/api/v1/sessions", strings.NewReader(body))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			assert.Equal(t, fiber.StatusBadRequest, doJSON(t, srv, req, nil))
		})
	}
}

func TestServer_ShouldStoreAndRemoveSessionClips(t *testing.T) {
	srv := newTestServer(t)
	info := createSession(t, srv, "")

	target := "/api/v1/sessions/" + info.ID + "/sounds/"
	code := doJSON(t, srv, multipartRequest(t, target+"early", "clip", "beep.wav", []byte("RIFF....WAVE")), nil)
	assert.Equal(t, fiber.StatusCreated, code)
	code = doJSON(t, srv, multipartRequest(t, target+"sleep", "clip", "alarm.mp3", []byte("ID3")), nil)
	assert.Equal(t, fiber.StatusCreated, code)

	code = doJSON(t, srv, multipartRequest(t, target+"normal", "clip", "beep.wav", []byte("x")), nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
	code = doJSON(t, srv, multipartRequest(t, target+"early", "clip", "beep.txt", []byte("x")), nil)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, code)

	sess, err := srv.sessions.get(info.ID)
	require.NoError(t, err)
	early := sess.clips[vigil.EarlyWarning]
	sleep := sess.clips[vigil.Confirmed]
	assert.FileExists(t, early)
	assert.FileExists(t, sleep)

	data, err := os.ReadFile(early)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(data))

	// Replacing a clip removes the previous file.
	code = doJSON(t, srv, multipartRequest(t, target+"early", "clip", "beep2.ogg", []byte("OggS")), nil)
	assert.Equal(t, fiber.StatusCreated, code)
	assert.NoFileExists(t, early)
	early = sess.clips[vigil.EarlyWarning]

	var got sessionInfo
	doJSON(t, srv, httptest.NewRequest(fiber.MethodGet, "/api/v1/sessions/"+info.ID, nil), &got)
	assert.Equal(t, []vigil.Alert{vigil.EarlyWarning, vigil.Confirmed}, got.Clips)

	doJSON(t, srv, httptest.NewRequest(fiber.MethodDelete, "/api/v1/sessions/"+info.ID, nil), nil)
	assert.NoFileExists(t, early)
	assert.NoFileExists(t, sleep)
}

func TestServer_ShouldRequireWebSocketUpgrade(t *testing.T) {
	srv := newTestServer(t)
	info := createSession(t, srv, "")

	code := doJSON(t, srv, httptest.NewRequest(fiber.MethodGet, "/api/v1/sessions/"+info.ID+"/ws", nil), nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, code)
}

func landmarkMessage(t *testing.T, open bool) []byte {
	t.Helper()

	lid := 0.5
	if open {
		lid = 2
	}
	eye := vigil.EyeLandmarks{{X: 0, Y: 0}, {X: 3, Y: -lid}, {X: 7, Y: -lid}, {X: 10, Y: 0}, {X: 7, Y: lid}, {X: 3, Y: lid}}

	points := make([]vigil.Point, vigil.MeshPoints)
	for i := 0; i < 6; i++ {
		points[vigil.LeftEyeIndices[i]] = vigil.Point{X: eye[i].X + 100, Y: eye[i].Y + 100}
		points[vigil.RightEyeIndices[i]] = vigil.Point{X: eye[i].X + 200, Y: eye[i].Y + 100}
	}

	data, err := json.Marshal(vigil.LandmarkFrame{Faces: []vigil.FaceMesh{{Points: points, Score: 0.9}}})
	require.NoError(t, err)
	return data
}

func TestServer_ShouldDebounceStreamedFrames(t *testing.T) {
	srv := newTestServer(t)
	createSession(t, srv, `{"early_frames": 2, "confirm_frames": 4}`)

	var sess *session
	for _, s := range srv.sessions.table {
		sess = s
	}
	require.NotNil(t, sess)

	closed := landmarkMessage(t, false)
	var alerts []vigil.Alert
	var statuses []string
	for i := 0; i < 4; i++ {
		reply, ok := srv.processFrame(sess, websocket.TextMessage, closed).(frameReply)
		require.True(t, ok)
		assert.Equal(t, vigil.EyesClosed, reply.State)
		alerts = append(alerts, reply.Alert)
		statuses = append(statuses, reply.Status)
	}
	assert.Equal(t, []vigil.Alert{vigil.Normal, vigil.EarlyWarning, vigil.Normal, vigil.Confirmed}, alerts)
	assert.Equal(t, []string{"ALERT", "EYES CLOSING", "EYES CLOSING", "SLEEP DETECTED!"}, statuses)

	reply := srv.processFrame(sess, websocket.TextMessage, landmarkMessage(t, true)).(frameReply)
	assert.Equal(t, vigil.EyesOpen, reply.State)
	assert.Equal(t, 0, reply.Counter)
	assert.InDelta(t, 0.4, reply.EAR, 1e-9)

	assert.Equal(t, uint64(5), sess.info().Stats.Frames)
}

func TestServer_ShouldReplyWithErrorsOnInvalidFrames(t *testing.T) {
	srv := newTestServer(t)
	createSession(t, srv, "")

	var sess *session
	for _, s := range srv.sessions.table {
		sess = s
	}

	_, ok := srv.processFrame(sess, websocket.TextMessage, []byte(`{"faces": [`)).(errorReply)
	assert.True(t, ok)

	// Binary frames need a detector.
	_, ok = srv.processFrame(sess, websocket.BinaryMessage, pngBytes(t, color.White)).(errorReply)
	assert.True(t, ok)

	srv.scanner = fakeScanner{eyes: 2}
	_, ok = srv.processFrame(sess, websocket.BinaryMessage, []byte("not an image")).(errorReply)
	assert.True(t, ok)

	reply, ok := srv.processFrame(sess, websocket.BinaryMessage, pngBytes(t, color.White)).(frameReply)
	require.True(t, ok)
	assert.Equal(t, vigil.EyesOpen, reply.State)
	assert.Len(t, reply.Faces, 1)

	// Errors are not counted as observed frames.
	assert.Equal(t, uint64(1), sess.info().Stats.Frames)
}

func TestServer_ShouldDropFramesAboveRateLimit(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.FrameRate = 0.001
	cfg.FrameBurst = 1

	srv, err := New(WithConfig(cfg), WithLogger(logger))
	require.NoError(t, err)
	createSession(t, srv, "")

	var sess *session
	for _, s := range srv.sessions.table {
		sess = s
	}

	msg := landmarkMessage(t, true)
	_, ok := srv.processFrame(sess, websocket.TextMessage, msg).(frameReply)
	assert.True(t, ok)

	reply, ok := srv.processFrame(sess, websocket.TextMessage, msg).(droppedReply)
	require.True(t, ok)
	assert.True(t, reply.Dropped)

	data, err := json.Marshal(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dropped": true}`, string(data))
}

func TestServer_ShouldStopObservingDeletedSessions(t *testing.T) {
	srv := newTestServer(t)
	info := createSession(t, srv, "")

	sess, err := srv.sessions.get(info.ID)
	require.NoError(t, err)

	msg := landmarkMessage(t, false)
	_, ok := srv.processFrame(sess, websocket.TextMessage, msg).(frameReply)
	require.True(t, ok)

	code := doJSON(t, srv, httptest.NewRequest(fiber.MethodDelete, "/api/v1/sessions/"+info.ID, nil), nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.True(t, sess.isClosed())

	// A stream opened before the deletion still holds the session.
	reply, ok := srv.processFrame(sess, websocket.TextMessage, msg).(errorReply)
	require.True(t, ok)
	assert.Equal(t, ErrSessionNotFound.Error(), reply.Error)

	_, err = sess.observe(vigil.EyeReading{FaceFound: true})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, uint64(1), sess.info().Stats.Frames)
}
