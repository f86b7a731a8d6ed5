package domain

import (
	"math"
	"time"
)

// PassingScore is the minimum percentage counted as a pass.
const PassingScore = 60.0

// AttemptResult is one completed attempt inside test statistics.
type AttemptResult struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Score          float64    `json:"score"`
	CorrectAnswers int        `json:"correctAnswers"`
	TotalQuestions int        `json:"totalQuestions"`
	CompletedAt    *time.Time `json:"completedAt"`
}

// TestStatistics aggregates completed attempts of a single test.
type TestStatistics struct {
	TestID        string          `json:"testId"`
	TotalAttempts int             `json:"totalAttempts"`
	AverageScore  float64         `json:"averageScore"`
	PassRate      float64         `json:"passRate"`
	Attempts      []AttemptResult `json:"attempts"`
}

// StatisticsOverview summarizes every test owned by a creator.
type StatisticsOverview struct {
	TotalTests        int     `json:"totalTests"`
	ActiveTests       int     `json:"activeTests"`
	DraftTests        int     `json:"draftTests"`
	TotalParticipants int     `json:"totalStudents"`
	TotalAttempts     int     `json:"totalAttempts"`
	CompletedAttempts int     `json:"completedAttempts"`
	AverageScore      float64 `json:"averageScore"`
}

// TestBreakdown is the per-test row of creator statistics.
type TestBreakdown struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Status            TestStatus `json:"status"`
	TotalAttempts     int        `json:"totalAttempts"`
	CompletedAttempts int        `json:"completedAttempts"`
	AverageScore      float64    `json:"averageScore"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// CreatorStatistics is the dashboard aggregate for one creator.
type CreatorStatistics struct {
	Overview StatisticsOverview `json:"overview"`
	Tests    []TestBreakdown    `json:"testStatistics"`
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
