package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
)

// UpsertProblems implements [store.ProblemStore]. Problems are keyed by their
// Number so re-seeding the bank updates rows in place.
func (s *Store) UpsertProblems(ctx context.Context, problems []interview.CodingProblem) error {
	const q = `
		INSERT INTO coding_problems
		    (number, title, description, difficulty, tags, companies, position_types, examples)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (number) DO UPDATE SET
		    title          = EXCLUDED.title,
		    description    = EXCLUDED.description,
		    difficulty     = EXCLUDED.difficulty,
		    tags           = EXCLUDED.tags,
		    companies      = EXCLUDED.companies,
		    position_types = EXCLUDED.position_types,
		    examples       = EXCLUDED.examples`

	for _, p := range problems {
		tags, err := json.Marshal(orEmpty(p.Tags))
		if err != nil {
			return fmt.Errorf("problem store: marshal tags: %w", err)
		}
		companies, err := json.Marshal(orEmpty(p.Companies))
		if err != nil {
			return fmt.Errorf("problem store: marshal companies: %w", err)
		}
		positions, err := json.Marshal(p.PositionTypes)
		if err != nil {
			return fmt.Errorf("problem store: marshal position types: %w", err)
		}
		examples, err := json.Marshal(p.Examples)
		if err != nil {
			return fmt.Errorf("problem store: marshal examples: %w", err)
		}
		if _, err := s.pool.Exec(ctx, q,
			p.Number, p.Title, p.Description, string(p.Difficulty),
			tags, companies, positions, examples); err != nil {
			return fmt.Errorf("problem store: upsert %d: %w", p.Number, err)
		}
	}
	return nil
}

// ListProblems implements [store.ProblemStore].
func (s *Store) ListProblems(ctx context.Context) ([]interview.CodingProblem, error) {
	const q = `
		SELECT id, number, title, description, difficulty, tags, companies, position_types, examples
		FROM   coding_problems
		ORDER  BY number`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("problem store: list: %w", err)
	}
	result, err := pgx.CollectRows(rows, scanProblem)
	if err != nil {
		return nil, fmt.Errorf("problem store: list: %w", err)
	}
	return result, nil
}

// GetProblem implements [store.ProblemStore].
func (s *Store) GetProblem(ctx context.Context, id int64) (interview.CodingProblem, error) {
	const q = `
		SELECT id, number, title, description, difficulty, tags, companies, position_types, examples
		FROM   coding_problems
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return interview.CodingProblem{}, fmt.Errorf("problem store: get: %w", err)
	}
	p, err := pgx.CollectOneRow(rows, scanProblem)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.CodingProblem{}, store.ErrNotFound
	}
	if err != nil {
		return interview.CodingProblem{}, fmt.Errorf("problem store: get: %w", err)
	}
	return p, nil
}

func scanProblem(row pgx.CollectableRow) (interview.CodingProblem, error) {
	var (
		p             interview.CodingProblem
		difficulty    string
		tagsJSON      []byte
		companiesJSON []byte
		positionsJSON []byte
		examplesJSON  []byte
	)
	if err := row.Scan(&p.ID, &p.Number, &p.Title, &p.Description, &difficulty,
		&tagsJSON, &companiesJSON, &positionsJSON, &examplesJSON); err != nil {
		return interview.CodingProblem{}, err
	}
	p.Difficulty = interview.Difficulty(difficulty)
	if err := json.Unmarshal(tagsJSON, &p.Tags); err != nil {
		return interview.CodingProblem{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(companiesJSON, &p.Companies); err != nil {
		return interview.CodingProblem{}, fmt.Errorf("unmarshal companies: %w", err)
	}
	if err := json.Unmarshal(positionsJSON, &p.PositionTypes); err != nil {
		return interview.CodingProblem{}, fmt.Errorf("unmarshal position types: %w", err)
	}
	if err := json.Unmarshal(examplesJSON, &p.Examples); err != nil {
		return interview.CodingProblem{}, fmt.Errorf("unmarshal examples: %w", err)
	}
	return p, nil
}

// orEmpty keeps JSONB columns as [] instead of null for nil slices.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
