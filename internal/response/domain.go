package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/media"
)

// Classify maps an attempt error onto an HTTP status and error code. Field
// details are returned for validation failures.
func Classify(err error) (int, ErrCode, map[string]string) {
	var (
		loadErr       *apperrors.LoadError
		notFound      *apperrors.NotFoundError
		indexErr      *apperrors.IndexError
		deviceErr     *apperrors.DeviceError
		recognizeErr  *apperrors.RecognitionError
		submissionErr *apperrors.SubmissionError
		validationErr *apperrors.ValidationError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrTestNotFound, nil
	case errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity, ErrTestUnavailable, nil
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, ErrSubmissionRejected, validationErr.Fields
	case errors.As(err, &indexErr):
		return http.StatusBadRequest, ErrInvalidIndex, nil
	case errors.As(err, &deviceErr):
		return http.StatusConflict, ErrCameraUnavailable, nil
	case errors.As(err, &recognizeErr):
		return http.StatusBadGateway, ErrRecognitionFailed, nil
	case errors.As(err, &submissionErr):
		return http.StatusBadGateway, ErrSubmissionFailed, nil
	case errors.Is(err, apperrors.ErrSessionClosed):
		return http.StatusConflict, ErrAttemptClosed, nil
	case errors.Is(err, apperrors.ErrNotRetryable):
		return http.StatusConflict, ErrNotRetryable, nil
	case errors.Is(err, apperrors.ErrInvalidOption):
		return http.StatusBadRequest, ErrInvalidOption, nil
	case errors.Is(err, apperrors.ErrFieldNotEditable):
		return http.StatusBadRequest, ErrInvalidPayload, nil
	case errors.Is(err, apperrors.ErrMediaNotAccepted):
		return http.StatusBadRequest, ErrMediaNotAccepted, nil
	case errors.Is(err, apperrors.ErrCaptureBusy):
		return http.StatusConflict, ErrCaptureBusy, nil
	case errors.Is(err, apperrors.ErrCaptureInactive):
		return http.StatusConflict, ErrCaptureNotActive, nil
	case errors.Is(err, media.ErrUnsupportedImage), errors.Is(err, media.ErrEmptyImage):
		return http.StatusBadRequest, ErrUnsupportedFile, nil
	case errors.Is(err, media.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, ErrFileTooLarge, nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrInternal, nil
	default:
		return http.StatusInternalServerError, ErrInternal, nil
	}
}

// FailError sends the error response Classify picks for err.
func FailError(c *gin.Context, err error) {
	status, code, fields := Classify(err)
	if len(fields) > 0 {
		FailWithFields(c, status, code, fields)
		return
	}
	Fail(c, status, code)
}
