package main

import (
	"time"

	"github.com/rs/zerolog/log"
)

// The round controller binds a wall-clock deadline to each question at the
// moment it opens. The deadline timer and the all-answered path both funnel
// into endQuestion, whose round-sequence guard makes double invocation and
// stale-timer firings no-ops.

// startQuestion opens a round and arms its deadline timer. The deadline is
// the answer window plus a one-second grace period, so an answer sent at
// the very edge of the window still lands before the round closes.
func (gm *GameManager) startQuestion(g *Game, hostID string, q Question) (int, error) {
	round, err := g.startQuestion(hostID, q)
	if err != nil {
		return 0, err
	}

	gm.armRoundTimer(g, round)

	log.Debug().Str("pin", g.pin).Int("round", round).Msg("question round opened")

	return round, nil
}

func (gm *GameManager) armRoundTimer(g *Game, round int) {
	deadline := gm.cfg.questionTime + time.Second

	timer := time.AfterFunc(deadline, func() {
		gm.endQuestion(g, round)
	})

	g.mu.Lock()
	if g.status == statusQuestion && g.round == round {
		if g.timer != nil {
			g.timer.Stop()
		}
		g.timer = timer
	} else {
		// The round already closed (or the game ended) between opening
		// and arming; the fresh timer must not fire.
		timer.Stop()
	}
	g.mu.Unlock()
}

// endQuestion closes the given round, broadcasts the results, and reports
// whether this invocation was the one that closed it.
func (gm *GameManager) endQuestion(g *Game, round int) bool {
	summary, ok := g.closeRound(round)
	if !ok {
		return false
	}

	gm.notify.Broadcast(g.pin, questionEndedMessage{
		Type:          "question_ended",
		CorrectAnswer: summary.CorrectAnswer,
		Results:       summary.Results,
		Scores:        summary.Scores,
		Streaks:       summary.Streaks,
	})

	log.Debug().Str("pin", g.pin).Int("round", round).Msg("question round closed")

	return true
}
