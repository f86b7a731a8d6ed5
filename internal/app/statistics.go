package app

import (
	"context"
	"sort"

	"quiz-attempt-service/internal/domain"
)

// StatisticsService derives creator dashboards from stored attempts. It never writes.
type StatisticsService struct {
	tests TestRepository
	store AttemptStore
}

func NewStatisticsService(tests TestRepository, store AttemptStore) *StatisticsService {
	return &StatisticsService{tests: tests, store: store}
}

// CreatorStatistics summarizes all tests owned by the calling creator.
func (s *StatisticsService) CreatorStatistics(ctx context.Context, caller domain.Caller) (domain.CreatorStatistics, error) {
	if !caller.Role.IsCreator() {
		return domain.CreatorStatistics{}, domain.ErrCreatorOnly
	}
	tests, err := s.tests.ListTestsByCreator(ctx, caller.ID)
	if err != nil {
		return domain.CreatorStatistics{}, err
	}

	stats := domain.CreatorStatistics{Tests: make([]domain.TestBreakdown, 0, len(tests))}
	participants := make(map[string]struct{})
	var totalScore float64

	for _, test := range tests {
		stats.Overview.TotalTests++
		switch test.Status {
		case domain.TestStatusActive:
			stats.Overview.ActiveTests++
		case domain.TestStatusDraft:
			stats.Overview.DraftTests++
		}

		attempts, err := s.store.ListAttemptsByTest(ctx, test.ID)
		if err != nil {
			return domain.CreatorStatistics{}, err
		}

		row := domain.TestBreakdown{
			ID:            test.ID,
			Title:         test.Title,
			Status:        test.Status,
			TotalAttempts: len(attempts),
			CreatedAt:     test.CreatedAt,
		}
		var testScore float64
		for _, a := range attempts {
			participants[a.UserID] = struct{}{}
			if a.Status != domain.AttemptCompleted {
				continue
			}
			row.CompletedAttempts++
			testScore += scoreOf(a)
		}
		row.AverageScore = average(testScore, row.CompletedAttempts)

		stats.Overview.TotalAttempts += row.TotalAttempts
		stats.Overview.CompletedAttempts += row.CompletedAttempts
		totalScore += testScore
		stats.Tests = append(stats.Tests, row)
	}

	stats.Overview.TotalParticipants = len(participants)
	stats.Overview.AverageScore = average(totalScore, stats.Overview.CompletedAttempts)
	sort.SliceStable(stats.Tests, func(i, j int) bool {
		return stats.Tests[i].CreatedAt.After(stats.Tests[j].CreatedAt)
	})
	return stats, nil
}

// testStatistics aggregates attempts already filtered to the completed ones.
func testStatistics(testID string, completed []domain.Attempt) domain.TestStatistics {
	stats := domain.TestStatistics{
		TestID:        testID,
		TotalAttempts: len(completed),
		Attempts:      make([]domain.AttemptResult, 0, len(completed)),
	}
	var total float64
	passed := 0
	for _, a := range completed {
		score := scoreOf(a)
		total += score
		if score >= domain.PassingScore {
			passed++
		}
		correct := 0
		if a.CorrectAnswers != nil {
			correct = *a.CorrectAnswers
		}
		stats.Attempts = append(stats.Attempts, domain.AttemptResult{
			ID:             a.ID,
			UserID:         a.UserID,
			Score:          score,
			CorrectAnswers: correct,
			TotalQuestions: a.TotalQuestions,
			CompletedAt:    a.CompletedAt,
		})
	}
	stats.AverageScore = average(total, len(completed))
	if len(completed) > 0 {
		stats.PassRate = domain.Round2(float64(passed) / float64(len(completed)) * 100)
	}
	return stats
}

func scoreOf(a domain.Attempt) float64 {
	if a.Score == nil {
		return 0
	}
	return *a.Score
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return domain.Round2(sum / float64(n))
}
