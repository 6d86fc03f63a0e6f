package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func TestGetTestDecodesLegacyDefinition(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "t-1",
			"title": "Biology",
			"duration_minutes": 30,
			"total_marks": 3,
			"questions": [
				{"question_text": "Pick", "question_type": "mcq", "options": ["A", "B"], "marks": 1, "correct_answer": "A"},
				{"question_text": "Explain", "question_type": "long", "marks": 2}
			]
		}`))
	}))
	defer srv.Close()

	c := NewDefinitionClient(srv.URL+"/api/", time.Second)
	def, err := c.GetTest(WithToken(context.Background(), "tok"), "t-1")
	require.NoError(t, err)

	require.Equal(t, "/api/tests/t-1", gotPath)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "t-1", def.ID)
	require.Equal(t, 1800, def.DurationSeconds())
	require.Len(t, def.Questions, 2)
	require.Equal(t, model.QuestionTypeMultipleChoice, def.Questions[0].Type)
	require.Equal(t, model.QuestionTypeLongAnswer, def.Questions[1].Type)
	require.Equal(t, 1, def.Questions[1].Index)
}

func TestGetTestNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "Test not found"}`))
	}))
	defer srv.Close()

	_, err := NewDefinitionClient(srv.URL, time.Second).GetTest(context.Background(), "missing")

	var nf *apperrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "missing", nf.ID)
}

func TestGetTestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail": "boom"}`))
	}))
	defer srv.Close()

	_, err := NewDefinitionClient(srv.URL, time.Second).GetTest(context.Background(), "t-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestDeliverPostsPayload(t *testing.T) {
	var (
		gotPath   string
		gotMethod string
		gotAuth   string
		got       model.SubmissionPayload
		decodeErr error
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		decodeErr = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id": "res-9", "total_score": 1}`))
	}))
	defer srv.Close()

	rec := model.NewAnswerRecord(0)
	rec.Set(model.FieldRecognizedText, "cat")
	payload := model.SubmissionPayload{TestID: "t-1", Answers: []model.AnswerRecord{rec}}

	res, err := NewSubmissionClient(srv.URL, time.Second).Deliver(WithToken(context.Background(), "tok"), payload)
	require.NoError(t, err)
	require.NoError(t, decodeErr)

	require.Equal(t, "res-9", res.ResultID)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/tests/t-1/submit", gotPath)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "t-1", got.TestID)
	require.Len(t, got.Answers, 1)
	require.NotNil(t, got.Answers[0].RecognizedText)
	require.Equal(t, "cat", *got.Answers[0].RecognizedText)
}

func TestDeliverPrefersResultID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "row", "result_id": "res-1"}`))
	}))
	defer srv.Close()

	res, err := NewSubmissionClient(srv.URL, time.Second).Deliver(context.Background(), model.SubmissionPayload{TestID: "t"})
	require.NoError(t, err)
	require.Equal(t, "res-1", res.ResultID)
}

func TestDeliverFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message": "upstream down"}`))
	}))

	c := NewSubmissionClient(srv.URL, time.Second)
	_, err := c.Deliver(context.Background(), model.SubmissionPayload{TestID: "t"})

	var subErr *apperrors.SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, http.StatusBadGateway, subErr.StatusCode)
	require.Contains(t, err.Error(), "upstream down")

	srv.Close()
	_, err = c.Deliver(context.Background(), model.SubmissionPayload{TestID: "t"})
	require.ErrorAs(t, err, &subErr)
	require.Zero(t, subErr.StatusCode)
}
