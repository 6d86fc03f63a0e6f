package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/client"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// AttemptHandler exposes a live attempt over plain HTTP, for clients that
// upload files or poll instead of using the stream.
type AttemptHandler struct {
	attempts       *service.AttemptService
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, maxUploadBytes int64, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts:       attempts,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// SetAnswerRequest is the body of SetAnswer.
type SetAnswerRequest struct {
	Field string `json:"field" binding:"required,oneof=answer_text selected_option"`
	Value string `json:"value"`
}

// GetAttempt godoc
// GET /api/v1/attempts/:attempt_id
// Returns the attempt's current state and answers.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// SetAnswer godoc
// PUT /api/v1/attempts/:attempt_id/questions/:index/answer
// Sets the typed text or selected option of one question.
func (h *AttemptHandler) SetAnswer(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	index, ok := questionIndex(c)
	if !ok {
		return
	}

	var req SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.SetAnswerField(index, model.AnswerField(req.Field), req.Value); err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Answers()[index])
}

// UploadImage godoc
// POST /api/v1/attempts/:attempt_id/questions/:index/image
// Attaches a handwritten answer photo. Recognition runs in the background and
// its result reaches the stream as an answer_changed event.
func (h *AttemptHandler) UploadImage(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	index, ok := questionIndex(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Str("attempt_id", sess.ID()).Msg("Failed to read upload")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	ctx := client.WithToken(c.Request.Context(), middleware.GetToken(c))
	if err := sess.AttachImage(ctx, index, data); err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"question_index": index})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Submits the attempt. A repeated call while delivery runs is a no-op.
func (h *AttemptHandler) Submit(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	started, err := sess.SubmitManually()
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{
		"started": started,
		"state":   sess.State(),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (h *AttemptHandler) ownedSession(c *gin.Context) (*session.Session, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	sess, err := h.attempts.Owned(c.Param("attempt_id"), claims.UserID)
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return nil, false
	case errors.Is(err, service.ErrAttemptNotOwned):
		response.Fail(c, http.StatusForbidden, response.ErrAttemptNotOwned)
		return nil, false
	case err != nil:
		response.FailError(c, err)
		return nil, false
	}
	return sess, true
}

func questionIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidIndex)
		return 0, false
	}
	return index, true
}
