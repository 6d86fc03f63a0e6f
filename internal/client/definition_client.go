package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// DefinitionClient fetches test definitions from the test service.
type DefinitionClient struct {
	upstream
}

// NewDefinitionClient creates a new DefinitionClient.
func NewDefinitionClient(baseURL string, timeout time.Duration) *DefinitionClient {
	return &DefinitionClient{upstream: newUpstream(baseURL, timeout)}
}

// GetTest retrieves the definition of testID. Unknown tests yield
// *errors.NotFoundError.
func (c *DefinitionClient) GetTest(ctx context.Context, testID string) (*model.TestDefinition, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/tests/"+url.PathEscape(testID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &apperrors.NotFoundError{Resource: "test", ID: testID}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("get test: status %d: %s", resp.StatusCode, errorDetail(resp))
	}

	var def model.TestDefinition
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		return nil, fmt.Errorf("decode test definition: %w", err)
	}
	if def.ID == "" {
		def.ID = testID
	}
	def.Reindex()
	return &def, nil
}
