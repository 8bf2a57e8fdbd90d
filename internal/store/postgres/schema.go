// Package postgres provides the PostgreSQL-backed implementation of
// [github.com/mianlab/koushi/internal/store.Store].
//
// All tables live in one schema and share a single [pgxpool.Pool]. [Migrate]
// is idempotent and runs on every start.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    id                    BIGSERIAL    PRIMARY KEY,
    user_id               BIGINT       NOT NULL,
    resume_id             BIGINT       NOT NULL DEFAULT 0,
    position_name         TEXT         NOT NULL,
    company_name          TEXT         NOT NULL DEFAULT '',
    position_description  TEXT         NOT NULL DEFAULT '',
    position_requirements TEXT         NOT NULL DEFAULT '',
    position_type         TEXT         NOT NULL DEFAULT 'backend',
    questions             JSONB        NOT NULL DEFAULT '[]',
    interview_time        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed             BOOLEAN      NOT NULL DEFAULT FALSE,
    created_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interviews_user
    ON interviews (user_id);

CREATE INDEX IF NOT EXISTS idx_interviews_user_type_time
    ON interviews (user_id, position_type, interview_time DESC);
`

const ddlAnswers = `
CREATE TABLE IF NOT EXISTS interview_answers (
    id                     UUID             PRIMARY KEY,
    interview_id           BIGINT           NOT NULL REFERENCES interviews (id) ON DELETE CASCADE,
    question_index         INT              NOT NULL,
    question               TEXT             NOT NULL,
    answer                 TEXT             NOT NULL DEFAULT '',
    knowledge_points       JSONB            NOT NULL DEFAULT '[]',
    clip_path              TEXT             NOT NULL DEFAULT '',
    professional_knowledge DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    skill_matching         DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    communication          DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    logical_thinking       DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    innovation             DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    stress_handling        DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    correctness            DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    analysis               TEXT             NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ      NOT NULL DEFAULT now(),
    UNIQUE (interview_id, question_index)
);

CREATE INDEX IF NOT EXISTS idx_answers_interview
    ON interview_answers (interview_id);
`

const ddlCodingAnswers = `
CREATE TABLE IF NOT EXISTS coding_answers (
    id           UUID         PRIMARY KEY,
    interview_id BIGINT       NOT NULL REFERENCES interviews (id) ON DELETE CASCADE,
    problem_id   BIGINT       NOT NULL,
    code         TEXT         NOT NULL,
    language     TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (interview_id, problem_id)
);

CREATE INDEX IF NOT EXISTS idx_coding_answers_interview
    ON coding_answers (interview_id);
`

// The résumé table is written by the account system, not by this server.
// The DDL exists so a fresh database is usable end to end.
const ddlResumes = `
CREATE TABLE IF NOT EXISTS resumes (
    id                  BIGSERIAL    PRIMARY KEY,
    user_id             BIGINT       NOT NULL,
    name                TEXT         NOT NULL DEFAULT '',
    expected_position   TEXT         NOT NULL DEFAULT '',
    education_level     TEXT         NOT NULL DEFAULT '',
    work_experiences    JSONB        NOT NULL DEFAULT '[]',
    project_experiences JSONB        NOT NULL DEFAULT '[]',
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_resumes_user
    ON resumes (user_id);
`

// The bank is seeded at startup from the YAML problem file; Number is the
// stable external key so re-seeding updates in place.
const ddlCodingProblems = `
CREATE TABLE IF NOT EXISTS coding_problems (
    id             BIGSERIAL PRIMARY KEY,
    number         INT       NOT NULL UNIQUE,
    title          TEXT      NOT NULL,
    description    TEXT      NOT NULL,
    difficulty     TEXT      NOT NULL,
    tags           JSONB     NOT NULL DEFAULT '[]',
    companies      JSONB     NOT NULL DEFAULT '[]',
    position_types JSONB     NOT NULL DEFAULT '[]',
    examples       JSONB     NOT NULL DEFAULT '[]'
);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlInterviews,
		ddlAnswers,
		ddlCodingAnswers,
		ddlResumes,
		ddlCodingProblems,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
