package main

import (
	"testing"
)

func defaultScoring() scoreConfig {
	return scoreConfig{
		basePoints:   1000,
		maxTimeBonus: 500,
		streakBonus:  100,
		timeLimit:    20,
	}
}

func TestScoreRoundCorrectAnswerFormula(t *testing.T) {
	tests := []struct {
		name        string
		elapsed     float64
		priorStreak int
		wantPoints  int
	}{
		{"instant", 0.5, 0, 1000 + 487 + 100},
		{"five_seconds", 5, 0, 1000 + 375 + 100},
		{"five_seconds_on_streak", 5, 2, 1000 + 375 + 300},
		{"fifteen_seconds", 15, 0, 1000 + 125 + 100},
		{"at_limit", 20, 0, 1000 + 0 + 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := map[string]Answer{
				"player_1": {Choice: "A", TimeTaken: tt.elapsed},
			}
			scores := map[string]int{"player_1": 0}
			streaks := map[string]int{"player_1": tt.priorStreak}

			newScores, newStreaks, results := scoreRound(defaultScoring(), "A", answers, scores, streaks)

			result, ok := results["player_1"]
			if !ok {
				t.Fatal("no result recorded for player_1")
			}
			if !result.Correct {
				t.Error("result.Correct = false, want true")
			}
			if result.Points != tt.wantPoints {
				t.Errorf("points = %d, want %d", result.Points, tt.wantPoints)
			}
			if newScores["player_1"] != tt.wantPoints {
				t.Errorf("cumulative score = %d, want %d", newScores["player_1"], tt.wantPoints)
			}
			if newStreaks["player_1"] != tt.priorStreak+1 {
				t.Errorf("streak = %d, want %d", newStreaks["player_1"], tt.priorStreak+1)
			}
		})
	}
}

func TestScoreRoundPointsDecreaseWithElapsed(t *testing.T) {
	cfg := defaultScoring()
	prev := -1

	for _, elapsed := range []float64{19, 15, 10, 5, 1} {
		answers := map[string]Answer{"player_1": {Choice: "A", TimeTaken: elapsed}}
		_, _, results := scoreRound(cfg, "A", answers, map[string]int{"player_1": 0}, map[string]int{"player_1": 0})

		points := results["player_1"].Points
		if points <= prev {
			t.Fatalf("points at elapsed=%v is %d, not greater than %d at slower answer", elapsed, points, prev)
		}
		prev = points
	}
}

func TestScoreRoundInvalidTimes(t *testing.T) {
	for _, elapsed := range []float64{0, -1, 20.01, 100} {
		answers := map[string]Answer{"player_1": {Choice: "A", TimeTaken: elapsed}}
		scores := map[string]int{"player_1": 500}
		streaks := map[string]int{"player_1": 3}

		newScores, newStreaks, results := scoreRound(defaultScoring(), "A", answers, scores, streaks)

		if _, ok := results["player_1"]; ok {
			t.Errorf("elapsed=%v: result recorded for invalid time", elapsed)
		}
		if newScores["player_1"] != 500 {
			t.Errorf("elapsed=%v: score = %d, want unchanged 500", elapsed, newScores["player_1"])
		}
		if newStreaks["player_1"] != 0 {
			t.Errorf("elapsed=%v: streak = %d, want 0", elapsed, newStreaks["player_1"])
		}
	}
}

func TestScoreRoundIncorrectAnswer(t *testing.T) {
	answers := map[string]Answer{"player_1": {Choice: "B", TimeTaken: 5}}
	scores := map[string]int{"player_1": 1200}
	streaks := map[string]int{"player_1": 4}

	newScores, newStreaks, results := scoreRound(defaultScoring(), "A", answers, scores, streaks)

	result := results["player_1"]
	if result.Correct {
		t.Error("result.Correct = true, want false")
	}
	if result.Points != 0 {
		t.Errorf("points = %d, want 0", result.Points)
	}
	if newScores["player_1"] != 1200 {
		t.Errorf("score = %d, want unchanged 1200", newScores["player_1"])
	}
	if newStreaks["player_1"] != 0 {
		t.Errorf("streak = %d, want 0", newStreaks["player_1"])
	}
}

func TestScoreRoundNoAnswerResetsStreak(t *testing.T) {
	scores := map[string]int{"player_1": 2000, "player_2": 1000}
	streaks := map[string]int{"player_1": 5, "player_2": 0}
	answers := map[string]Answer{"player_2": {Choice: "A", TimeTaken: 3}}

	newScores, newStreaks, _ := scoreRound(defaultScoring(), "A", answers, scores, streaks)

	if newStreaks["player_1"] != 0 {
		t.Errorf("silent player streak = %d, want 0", newStreaks["player_1"])
	}
	if newScores["player_1"] != 2000 {
		t.Errorf("silent player score = %d, want unchanged 2000", newScores["player_1"])
	}
	if newStreaks["player_2"] != 1 {
		t.Errorf("answering player streak = %d, want 1", newStreaks["player_2"])
	}
}

func TestScoreRoundDoesNotMutateInputs(t *testing.T) {
	scores := map[string]int{"player_1": 100}
	streaks := map[string]int{"player_1": 2}
	answers := map[string]Answer{"player_1": {Choice: "A", TimeTaken: 5}}

	scoreRound(defaultScoring(), "A", answers, scores, streaks)

	if scores["player_1"] != 100 {
		t.Errorf("input scores mutated: %d", scores["player_1"])
	}
	if streaks["player_1"] != 2 {
		t.Errorf("input streaks mutated: %d", streaks["player_1"])
	}
}
