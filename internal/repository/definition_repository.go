package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// DefinitionRepository reads published test definitions from PostgreSQL.
type DefinitionRepository struct {
	pool *pgxpool.Pool
}

// NewDefinitionRepository creates a new DefinitionRepository.
func NewDefinitionRepository(pool *pgxpool.Pool) *DefinitionRepository {
	return &DefinitionRepository{pool: pool}
}

// GetTest retrieves a published test with its questions in order.
func (r *DefinitionRepository) GetTest(ctx context.Context, testID string) (*model.TestDefinition, error) {
	var (
		def       model.TestDefinition
		questions []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, total_marks, questions
		 FROM tests WHERE id = $1 AND published`, testID,
	).Scan(&def.ID, &def.Title, &def.DurationMinutes, &def.TotalMarks, &questions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Resource: "test", ID: testID}
		}
		return nil, fmt.Errorf("query test: %w", err)
	}

	if err := json.Unmarshal(questions, &def.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	def.Reindex()
	return &def, nil
}
