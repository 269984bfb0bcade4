package main

import (
	"testing"
	"time"
)

func openRound(t *testing.T, gm *GameManager, game *Game) int {
	t.Helper()

	q := Question{Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: "4"}
	round, err := gm.startQuestion(game, "host_1", q)
	if err != nil {
		t.Fatalf("startQuestion: %v", err)
	}
	return round
}

func TestEndQuestionIdempotent(t *testing.T) {
	gm, rec := newTestManager(testConfig())
	game := gm.create("host_1")
	game.join("alice")
	game.start("host_1", 1)

	round := openRound(t, gm, game)

	if !gm.endQuestion(game, round) {
		t.Fatal("first endQuestion returned false")
	}
	if gm.endQuestion(game, round) {
		t.Fatal("second endQuestion closed an already-closed round")
	}
	if rec.countRoundEnds() != 1 {
		t.Errorf("question_ended broadcasts = %d, want 1", rec.countRoundEnds())
	}
}

func TestStaleRoundCannotCloseLaterRound(t *testing.T) {
	gm, rec := newTestManager(testConfig())
	game := gm.create("host_1")
	game.join("alice")
	game.start("host_1", 1)

	first := openRound(t, gm, game)
	if !gm.endQuestion(game, first) {
		t.Fatal("closing first round failed")
	}

	second := openRound(t, gm, game)

	// A timer armed for the first round firing late must not touch the
	// second round.
	if gm.endQuestion(game, first) {
		t.Fatal("stale round close succeeded")
	}
	if game.status != statusQuestion {
		t.Errorf("status = %q, want question (second round still open)", game.status)
	}
	if game.round != second {
		t.Errorf("round = %d, want %d", game.round, second)
	}
	if rec.countRoundEnds() != 1 {
		t.Errorf("question_ended broadcasts = %d, want 1", rec.countRoundEnds())
	}
}

func TestDeadlineTimerClosesRound(t *testing.T) {
	cfg := testConfig()
	cfg.questionTime = 100 * time.Millisecond
	gm, rec := newTestManager(cfg)
	game := gm.create("host_1")
	game.join("alice")
	game.start("host_1", 1)

	openRound(t, gm, game)

	// Deadline is the answer window plus the one-second grace period.
	deadline := time.After(3 * time.Second)
	for {
		game.mu.Lock()
		closed := game.status == statusActive && game.currentQuestion == nil
		game.mu.Unlock()
		if closed {
			break
		}

		select {
		case <-deadline:
			t.Fatal("round not closed by deadline timer")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if rec.countRoundEnds() != 1 {
		t.Errorf("question_ended broadcasts = %d, want 1", rec.countRoundEnds())
	}
}

func TestExplicitCloseRacesTimer(t *testing.T) {
	cfg := testConfig()
	cfg.questionTime = 100 * time.Millisecond
	gm, rec := newTestManager(cfg)
	game := gm.create("host_1")
	game.join("alice")
	game.start("host_1", 1)

	round := openRound(t, gm, game)

	// Close explicitly, then let the armed timer's window elapse; the
	// timer path must find the round consumed.
	if !gm.endQuestion(game, round) {
		t.Fatal("explicit endQuestion failed")
	}

	time.Sleep(cfg.questionTime + 1200*time.Millisecond)

	if rec.countRoundEnds() != 1 {
		t.Errorf("question_ended broadcasts = %d, want exactly 1", rec.countRoundEnds())
	}
}

func TestEndGameCancelsTimer(t *testing.T) {
	cfg := testConfig()
	cfg.questionTime = 100 * time.Millisecond
	gm, rec := newTestManager(cfg)
	game := gm.create("host_1")
	game.join("alice")
	game.start("host_1", 1)

	openRound(t, gm, game)

	if _, _, err := game.end("host_1"); err != nil {
		t.Fatalf("end: %v", err)
	}

	time.Sleep(cfg.questionTime + 1200*time.Millisecond)

	if game.status != statusCompleted {
		t.Errorf("status = %q, want completed", game.status)
	}
	if rec.countRoundEnds() != 0 {
		t.Errorf("question_ended broadcasts = %d, want 0 after teardown", rec.countRoundEnds())
	}
}
