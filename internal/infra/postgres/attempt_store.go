package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// uniqueViolation is the SQLSTATE raised by the single in-progress attempt index.
const uniqueViolation = "23505"

type attemptRow struct {
	bun.BaseModel `bun:"table:test_attempts,alias:a"`

	ID             string     `bun:"id,pk"`
	UserID         string     `bun:"user_id,notnull"`
	TestID         string     `bun:"test_id,notnull"`
	Status         string     `bun:"status,notnull"`
	StartedAt      time.Time  `bun:"started_at,notnull"`
	CompletedAt    *time.Time `bun:"completed_at"`
	Score          *float64   `bun:"score"`
	CorrectAnswers *int       `bun:"correct_answers"`
	TotalQuestions int        `bun:"total_questions,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:test_answers,alias:ans"`

	ID               string    `bun:"id,pk"`
	AttemptID        string    `bun:"attempt_id,notnull"`
	QuestionID       string    `bun:"question_id,notnull"`
	SelectedOptionID *string   `bun:"selected_option_id"`
	TextAnswer       *string   `bun:"text_answer"`
	IsCorrect        bool      `bun:"is_correct,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
}

// AttemptStore persists attempts and answers with bun. Transactions lock attempt rows FOR UPDATE.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) InTx(ctx context.Context, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, attemptTx{db: tx})
	})
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, s.db, attemptID, false)
}

func (s *AttemptStore) ListAttemptsByUser(ctx context.Context, userID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("a.user_id = ?", userID).
		Order("a.started_at DESC", "a.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user attempts: %w", err)
	}
	return toAttempts(rows), nil
}

func (s *AttemptStore) ListAttemptsByTest(ctx context.Context, testID string, statuses ...domain.AttemptStatus) ([]domain.Attempt, error) {
	var rows []attemptRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("a.test_id = ?", testID).
		Order("a.started_at DESC", "a.id DESC")
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, st := range statuses {
			values[i] = string(st)
		}
		q = q.Where("a.status IN (?)", bun.In(values))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list test attempts: %w", err)
	}
	return toAttempts(rows), nil
}

func (s *AttemptStore) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	return listAnswers(ctx, s.db, attemptID)
}

type attemptTx struct {
	db bun.IDB
}

func (tx attemptTx) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, tx.db, attemptID, true)
}

func (tx attemptTx) FindInProgress(ctx context.Context, userID, testID string) (domain.Attempt, bool, error) {
	var row attemptRow
	err := tx.db.NewSelect().
		Model(&row).
		Where("a.user_id = ?", userID).
		Where("a.test_id = ?", testID).
		Where("a.status = ?", string(domain.AttemptInProgress)).
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("find in-progress attempt: %w", err)
	}
	return row.toDomain(), true, nil
}

func (tx attemptTx) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := fromAttempt(attempt)
	if _, err := tx.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
			return domain.ErrAttemptConflict
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (tx attemptTx) UpdateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := fromAttempt(attempt)
	res, err := tx.db.NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (tx attemptTx) ReplaceAnswers(ctx context.Context, attemptID, questionID string, answers []domain.Answer) error {
	_, err := tx.db.NewDelete().
		Model((*answerRow)(nil)).
		Where("attempt_id = ?", attemptID).
		Where("question_id = ?", questionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	if len(answers) == 0 {
		return nil
	}
	rows := make([]answerRow, len(answers))
	for i, a := range answers {
		rows[i] = fromAnswer(a)
	}
	if _, err := tx.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

func (tx attemptTx) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	return listAnswers(ctx, tx.db, attemptID)
}

func getAttempt(ctx context.Context, db bun.IDB, attemptID string, forUpdate bool) (domain.Attempt, error) {
	var row attemptRow
	q := db.NewSelect().Model(&row).Where("a.id = ?", attemptID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toDomain(), nil
}

func listAnswers(ctx context.Context, db bun.IDB, attemptID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := db.NewSelect().
		Model(&rows).
		Where("ans.attempt_id = ?", attemptID).
		Order("ans.created_at ASC", "ans.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func fromAttempt(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:             a.ID,
		UserID:         a.UserID,
		TestID:         a.TestID,
		Status:         string(a.Status),
		StartedAt:      a.StartedAt,
		CompletedAt:    a.CompletedAt,
		Score:          a.Score,
		CorrectAnswers: a.CorrectAnswers,
		TotalQuestions: a.TotalQuestions,
		UpdatedAt:      time.Now(),
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:             r.ID,
		UserID:         r.UserID,
		TestID:         r.TestID,
		Status:         domain.AttemptStatus(r.Status),
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		Score:          r.Score,
		CorrectAnswers: r.CorrectAnswers,
		TotalQuestions: r.TotalQuestions,
	}
}

func toAttempts(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}

func fromAnswer(a domain.Answer) answerRow {
	return answerRow{
		ID:               a.ID,
		AttemptID:        a.AttemptID,
		QuestionID:       a.QuestionID,
		SelectedOptionID: a.SelectedOptionID,
		TextAnswer:       a.TextAnswer,
		IsCorrect:        a.IsCorrect,
		CreatedAt:        a.CreatedAt,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:               r.ID,
		AttemptID:        r.AttemptID,
		QuestionID:       r.QuestionID,
		SelectedOptionID: r.SelectedOptionID,
		TextAnswer:       r.TextAnswer,
		IsCorrect:        r.IsCorrect,
		CreatedAt:        r.CreatedAt,
	}
}
