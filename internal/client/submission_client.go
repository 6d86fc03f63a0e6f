package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// SubmissionClient delivers finished attempts to the submission service.
type SubmissionClient struct {
	upstream
}

// NewSubmissionClient creates a new SubmissionClient.
func NewSubmissionClient(baseURL string, timeout time.Duration) *SubmissionClient {
	return &SubmissionClient{upstream: newUpstream(baseURL, timeout)}
}

type submitResponse struct {
	ID       string `json:"id"`
	ResultID string `json:"result_id"`
}

// Deliver posts the payload once. Every failure is a *errors.SubmissionError;
// StatusCode is zero when no response was received.
func (c *SubmissionClient) Deliver(ctx context.Context, payload model.SubmissionPayload) (model.SubmissionResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.SubmissionResult{}, fmt.Errorf("marshal submission: %w", err)
	}

	path := "/tests/" + url.PathEscape(payload.TestID) + "/submit"
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return model.SubmissionResult{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.SubmissionResult{}, &apperrors.SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.SubmissionResult{}, &apperrors.SubmissionError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(errorDetail(resp)),
		}
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.SubmissionResult{}, &apperrors.SubmissionError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode submit response: %w", err),
		}
	}

	id := out.ResultID
	if id == "" {
		id = out.ID
	}
	return model.SubmissionResult{ResultID: id}, nil
}
