package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/config"
	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/validator"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

const testSecret = "handler-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type quizDefinitions struct{}

func (quizDefinitions) GetTest(_ context.Context, testID string) (*model.TestDefinition, error) {
	if testID != "quiz" {
		return nil, &apperrors.NotFoundError{Resource: "test", ID: testID}
	}
	return &model.TestDefinition{
		ID:              "quiz",
		Title:           "Quiz",
		DurationMinutes: 10,
		TotalMarks:      2,
		Questions: []model.Question{
			{Text: "Pick", Type: model.QuestionTypeMultipleChoice, Options: []string{"A", "B"}, Marks: 1},
			{Text: "Write", Type: model.QuestionTypeShortAnswer, Marks: 1},
		},
	}, nil
}

type okSubmitter struct{}

func (okSubmitter) Submit(context.Context, string, []model.AnswerRecord) (model.SubmissionResult, error) {
	return model.SubmissionResult{ResultID: "r-1"}, nil
}

type fixture struct {
	attempts *service.AttemptService
	auth     *service.AuthService
	router   *gin.Engine
}

func newFixture(t *testing.T, maxUpload int64) *fixture {
	t.Helper()
	registry := session.NewRegistry(zerolog.Nop())
	t.Cleanup(registry.CloseAll)

	attempts := service.NewAttemptService(service.AttemptDeps{
		Definitions: quizDefinitions{},
		Submitter:   okSubmitter{},
		Registry:    registry,
	}, time.Hour, zerolog.Nop())
	auth := service.NewAuthService(&config.Config{JWTSecret: testSecret}, nil)

	attemptHandler := NewAttemptHandler(attempts, maxUpload, zerolog.Nop())
	wsHandler := NewWSHandler(attempts, zerolog.Nop(), nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	api := r.Group("/api/v1/attempts", middleware.RequireStudentJWT(auth))
	api.GET("/:attempt_id", attemptHandler.GetAttempt)
	api.PUT("/:attempt_id/questions/:index/answer", attemptHandler.SetAnswer)
	api.POST("/:attempt_id/questions/:index/image", attemptHandler.UploadImage)
	api.POST("/:attempt_id/submit", attemptHandler.Submit)
	r.GET("/ws/v1/attempts/:test_id/stream", middleware.RequireStudentJWT(auth), wsHandler.AttemptStream)

	return &fixture{attempts: attempts, auth: auth, router: r}
}

func (f *fixture) token(t *testing.T, studentID int) string {
	t.Helper()
	token, _, err := f.auth.GenerateStudentToken(studentID, 1, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) open(t *testing.T, studentID int) *session.Session {
	t.Helper()
	sess, _, err := f.attempts.Open(context.Background(), service.OpenRequest{TestID: "quiz", StudentID: studentID})
	require.NoError(t, err)
	return sess
}

func (f *fixture) do(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func jsonRequest(method, path string, v interface{}) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, path string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if payload != nil {
		part, err := mw.CreateFormFile("file", "answer.png")
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// ─── HTTP ───────────────────────────────────────────────────────────

func TestGetAttemptOwnership(t *testing.T) {
	f := newFixture(t, 1<<20)
	sess := f.open(t, 5)

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+sess.ID(), nil), f.token(t, 5))
	require.Equal(t, http.StatusOK, w.Code)
	snap, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, sess.ID(), snap["attempt_id"])

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+sess.ID(), nil), f.token(t, 6))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.ErrAttemptNotOwned, body.Error.Code)

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/attempts/missing", nil), f.token(t, 5))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrAttemptNotFound, body.Error.Code)

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+sess.ID(), nil), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenRequired, body.Error.Code)
}

func TestSetAnswer(t *testing.T) {
	f := newFixture(t, 1<<20)
	sess := f.open(t, 5)
	token := f.token(t, 5)
	base := "/api/v1/attempts/" + sess.ID() + "/questions/"

	w, _ := f.do(t, jsonRequest(http.MethodPut, base+"0/answer", SetAnswerRequest{Field: "selected_option", Value: "B"}), token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "B", sess.Answers()[0].SelectedOption)

	tests := []struct {
		name   string
		path   string
		body   SetAnswerRequest
		status int
		code   response.ErrCode
	}{
		{"unknown field", base + "0/answer", SetAnswerRequest{Field: "handwritten_image", Value: "x"}, http.StatusBadRequest, response.ErrValidation},
		{"non-numeric index", base + "abc/answer", SetAnswerRequest{Field: "answer_text"}, http.StatusBadRequest, response.ErrInvalidIndex},
		{"index out of range", base + "9/answer", SetAnswerRequest{Field: "answer_text"}, http.StatusBadRequest, response.ErrInvalidIndex},
		{"option not offered", base + "0/answer", SetAnswerRequest{Field: "selected_option", Value: "Z"}, http.StatusBadRequest, response.ErrInvalidOption},
		{"option on written question", base + "1/answer", SetAnswerRequest{Field: "selected_option", Value: "A"}, http.StatusBadRequest, response.ErrInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, jsonRequest(http.MethodPut, tt.path, tt.body), token)
			assert.Equal(t, tt.status, w.Code)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestUploadImage(t *testing.T) {
	f := newFixture(t, 4096)
	sess := f.open(t, 5)
	token := f.token(t, 5)
	base := "/api/v1/attempts/" + sess.ID() + "/questions/"

	w, body := f.do(t, uploadRequest(t, base+"1/image", nil), token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrFileRequired, body.Error.Code)

	w, body = f.do(t, uploadRequest(t, base+"1/image", bytes.Repeat([]byte{0xff}, 8192)), token)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, response.ErrFileTooLarge, body.Error.Code)

	w, body = f.do(t, uploadRequest(t, base+"0/image", pngBytes(t)), token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrMediaNotAccepted, body.Error.Code)

	w, _ = f.do(t, uploadRequest(t, base+"1/image", pngBytes(t)), token)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		return sess.Answers()[1].AttachedImage != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, 1<<20)
	sess := f.open(t, 5)
	token := f.token(t, 5)

	w, body := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/attempts/"+sess.ID()+"/submit", nil), token)
	require.Equal(t, http.StatusAccepted, w.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, true, data["started"])

	require.Eventually(t, func() bool {
		return sess.State().Status == model.StatusSubmitted
	}, 2*time.Second, 10*time.Millisecond)

	w, body = f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/attempts/"+sess.ID()+"/submit", nil), token)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, body.Data.(map[string]interface{})["started"])
}

// ─── WebSocket ──────────────────────────────────────────────────────

type streamClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, testID, token string) *streamClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/attempts/" + testID + "/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &streamClient{t: t, conn: conn}
}

func (c *streamClient) send(msg map[string]interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// expect reads events until one named event arrives, skipping time ticks.
func (c *streamClient) expect(event ws.Event, v interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg struct {
			Event ws.Event        `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		if msg.Event == ws.EventTimeTick {
			continue
		}
		require.Equal(c.t, event, msg.Event, string(msg.Data))
		if v != nil {
			require.NoError(c.t, json.Unmarshal(msg.Data, v))
		}
		return
	}
}

func TestAttemptStream(t *testing.T) {
	f := newFixture(t, 1<<20)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	c := dial(t, srv, "quiz", f.token(t, 5))

	var loaded struct {
		AttemptID string `json:"attempt_id"`
		Resumed   bool   `json:"resumed"`
		State     model.SessionState
	}
	c.expect(ws.EventLoaded, &loaded)
	require.NotEmpty(t, loaded.AttemptID)
	assert.False(t, loaded.Resumed)

	c.send(map[string]interface{}{"action": "ping"})
	c.expect(ws.EventPong, nil)

	c.send(map[string]interface{}{"action": "set_answer", "index": 1, "field": "answer_text", "value": "kucing"})
	var changed ws.AnswerChangedData
	c.expect(ws.EventAnswerChanged, &changed)
	assert.Equal(t, 1, changed.QuestionIndex)
	assert.Equal(t, "kucing", changed.Answer.AnswerText)

	c.send(map[string]interface{}{"action": "set_answer", "field": "answer_text", "value": "x"})
	var e ws.ErrorData
	c.expect(ws.EventError, &e)
	assert.Equal(t, string(response.ErrInvalidPayload), e.Code)
	assert.Equal(t, ws.ActionSetAnswer, e.Action)

	c.send(map[string]interface{}{"action": "set_answer", "index": 0, "field": "selected_option", "value": "Z"})
	c.expect(ws.EventError, &e)
	assert.Equal(t, string(response.ErrInvalidOption), e.Code)

	// Recognized text and images only come from media intake.
	c.send(map[string]interface{}{"action": "set_answer", "index": 1, "field": "recognized_text", "value": "forged"})
	c.expect(ws.EventError, &e)
	assert.Equal(t, string(response.ErrInvalidPayload), e.Code)
	c.send(map[string]interface{}{"action": "set_answer", "index": 1, "field": "attached_image", "value": "aGk="})
	c.expect(ws.EventError, &e)
	assert.Equal(t, string(response.ErrInvalidPayload), e.Code)

	c.send(map[string]interface{}{"action": "fly"})
	c.expect(ws.EventError, &e)
	assert.Equal(t, string(response.ErrUnknownAction), e.Code)

	c.send(map[string]interface{}{"action": "navigate", "delta": 1})
	var nav ws.NavigatedData
	c.expect(ws.EventNavigated, &nav)
	assert.Equal(t, 1, nav.CurrentIndex)

	c.send(map[string]interface{}{"action": "submit"})
	var submitting ws.SubmittingData
	c.expect(ws.EventSubmitting, &submitting)
	assert.Equal(t, model.TriggerManual, submitting.Trigger)
	var submitted ws.SubmittedData
	c.expect(ws.EventSubmitted, &submitted)
	assert.Equal(t, "r-1", submitted.ResultID)
}

func TestAttemptStreamUnknownTest(t *testing.T) {
	f := newFixture(t, 1<<20)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	c := dial(t, srv, "nope", f.token(t, 5))
	var e ws.ErrorData
	c.expect(ws.EventError, &e)
	assert.Equal(t, string(response.ErrTestNotFound), e.Code)
	assert.Equal(t, 0, f.attempts.Live())
}

func TestAttemptStreamReconnectReplacesOldConnection(t *testing.T) {
	f := newFixture(t, 1<<20)
	srv := httptest.NewServer(f.router)
	defer srv.Close()
	token := f.token(t, 5)

	first := dial(t, srv, "quiz", token)
	var loaded ws.LoadedData
	first.expect(ws.EventLoaded, &loaded)

	second := dial(t, srv, "quiz", token)
	var again struct {
		AttemptID string `json:"attempt_id"`
	}
	second.expect(ws.EventLoaded, &again)
	assert.NotEmpty(t, again.AttemptID)

	var e ws.ErrorData
	first.expect(ws.EventError, &e)
	assert.Equal(t, string(response.ErrAttemptNotFound), e.Code)
	assert.Eventually(t, func() bool { return f.attempts.Live() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// ─── Health ─────────────────────────────────────────────────────────

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fixedLive int

func (n fixedLive) Live() int { return int(n) }

func TestHealthAndStats(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Lpush(config.WorkerKey.PersistDeliveriesQueue, "a")
	mr.Lpush(config.WorkerKey.PersistDeliveriesQueue, "b")

	serve := func(h *HealthHandler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
		r := gin.New()
		r.GET("/health", h.Health)
		r.GET("/stats", h.Stats)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w, body.Data
	}

	w, data := serve(NewHealthHandler(rdb, nil, fixedLive(3), zerolog.Nop()), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", data["status"])

	w, data = serve(NewHealthHandler(rdb, fakePinger{err: context.DeadlineExceeded}, fixedLive(3), zerolog.Nop()), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", data["status"])

	w, data = serve(NewHealthHandler(rdb, fakePinger{}, fixedLive(3), zerolog.Nop()), "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, data["live_attempts"])
	assert.EqualValues(t, 2, data["queue_deliveries"])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m 5s", formatDuration(5*time.Second))
	assert.Equal(t, "2h 3m 0s", formatDuration(2*time.Hour+3*time.Minute))
	assert.Equal(t, "1d 1h 0m 0s", formatDuration(25*time.Hour))
}
