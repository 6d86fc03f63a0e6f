package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/client"
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs one attempt per WebSocket connection.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:test_id/stream
// Upgrades to WebSocket, opens (or resumes) the student's attempt and streams
// its lifecycle events. Closing the connection tears the attempt down.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID := c.Param("test_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("test_id", testID).
		Logger()

	out := newOutbox(conn, wsLog)
	defer out.close()

	listener := &connListener{out: out}
	camera := media.NewShellCamera(func() { out.send(ws.EventCameraStopped, nil) })

	ctx := client.WithToken(context.WithoutCancel(c.Request.Context()), middleware.GetToken(c))
	sess, resumed, err := h.attempts.Open(ctx, service.OpenRequest{
		TestID:    testID,
		StudentID: claims.UserID,
		Listener:  listener,
		Device:    camera,
	})
	if err != nil {
		wsLog.Warn().Err(err).Msg("Attempt could not be opened")
		out.send(ws.EventError, errorData("", err))
		return
	}
	defer h.attempts.Close(sess)

	listener.resumed = resumed
	if err := sess.Start(ctx); err != nil {
		out.send(ws.EventError, errorData("", err))
		return
	}

	wsLog = wsLog.With().Str("attempt_id", sess.ID()).Logger()
	wsLog.Info().Bool("resumed", resumed).Msg("Student connected")

	// A reconnect from another tab closes this session; drop the socket too.
	reading := make(chan struct{})
	defer close(reading)
	go func() {
		select {
		case <-sess.Done():
			out.send(ws.EventError, ws.ErrorData{
				Code:    string(response.ErrAttemptNotFound),
				Message: response.GetMessage(response.ErrAttemptNotFound),
			})
			out.close()
			conn.Close()
		case <-reading:
		}
	}()

	ac := &attemptConn{sess: sess, camera: camera, out: out, ctx: ctx, log: wsLog}
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		ac.dispatch(&msg)
	}
}
