package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/domain"
)

// TestLoader loads published test snapshots (JSONB) from Postgres.
type TestLoader struct {
	pool *pgxpool.Pool
}

func NewTestLoader(pool *pgxpool.Pool) *TestLoader {
	return &TestLoader{pool: pool}
}

func (l *TestLoader) LoadTest(ctx context.Context, testID string) (domain.Test, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM tests WHERE id=$1`, testID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, fmt.Errorf("load test %s: %w", testID, domain.ErrTestNotFound)
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("load test: %w", err)
	}
	return decodeTest(raw)
}

func (l *TestLoader) ListTestsByCreator(ctx context.Context, creatorID string) ([]domain.Test, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM tests WHERE creator_id=$1 ORDER BY created_at DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	var tests []domain.Test
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		test, err := decodeTest(raw)
		if err != nil {
			return nil, err
		}
		tests = append(tests, test)
	}
	return tests, rows.Err()
}

// SaveTest upserts a snapshot. The authoring workflow owns tests; this is used for seeding.
func (l *TestLoader) SaveTest(ctx context.Context, test domain.Test) error {
	data, err := json.Marshal(test)
	if err != nil {
		return fmt.Errorf("marshal test: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO tests (id, creator_id, status, data, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (id) DO UPDATE SET creator_id=EXCLUDED.creator_id, status=EXCLUDED.status, data=EXCLUDED.data
	`, test.ID, test.CreatorID, string(test.Status), string(data), test.CreatedAt)
	if err != nil {
		return fmt.Errorf("save test: %w", err)
	}
	return nil
}

func decodeTest(raw []byte) (domain.Test, error) {
	var test domain.Test
	if err := json.Unmarshal(raw, &test); err != nil {
		return domain.Test{}, fmt.Errorf("unmarshal test: %w", err)
	}
	return test, nil
}
