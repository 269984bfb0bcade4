package main

// Answer is one player's submission for the current round.
type Answer struct {
	Choice    string  `json:"answer"`
	TimeTaken float64 `json:"time_taken"` // seconds since the round opened
}

// RoundResult is the per-player outcome included in the question_ended
// broadcast.
type RoundResult struct {
	Correct bool `json:"correct"`
	Points  int  `json:"points"`
	Streak  int  `json:"streak"`
}

type scoreConfig struct {
	basePoints   int
	maxTimeBonus int
	streakBonus  int
	timeLimit    float64 // seconds
}

// scoreRound computes the outcome of a single round. It never mutates its
// inputs: updated cumulative scores and streaks are returned as fresh maps,
// so callers decide when (and whether) to commit them.
//
// Rules, per player:
//   - no answer recorded: streak resets to 0, score unchanged
//   - answer with elapsed <= 0 or elapsed > limit: invalid, streak resets,
//     no points even when the choice matches
//   - correct answer: streak increments, then
//     points = base + floor(maxBonus * (1 - elapsed/limit)) + streak*unit
//   - incorrect answer: streak resets, 0 points
func scoreRound(cfg scoreConfig, correctAnswer string, answers map[string]Answer, scores, streaks map[string]int) (map[string]int, map[string]int, map[string]RoundResult) {
	newScores := make(map[string]int, len(scores))
	for id, s := range scores {
		newScores[id] = s
	}

	newStreaks := make(map[string]int, len(streaks))
	for id := range streaks {
		newStreaks[id] = 0
	}

	results := make(map[string]RoundResult, len(answers))

	for playerID, answer := range answers {
		if answer.TimeTaken <= 0 || answer.TimeTaken > cfg.timeLimit {
			continue
		}

		correct := answer.Choice == correctAnswer
		points := 0

		if correct {
			timeBonus := float64(cfg.maxTimeBonus) * (1 - answer.TimeTaken/cfg.timeLimit)
			if timeBonus < 0 {
				timeBonus = 0
			}

			streak := streaks[playerID] + 1
			newStreaks[playerID] = streak
			points = cfg.basePoints + int(timeBonus) + streak*cfg.streakBonus
			newScores[playerID] += points
		}

		results[playerID] = RoundResult{
			Correct: correct,
			Points:  points,
			Streak:  newStreaks[playerID],
		}
	}

	return newScores, newStreaks, results
}
