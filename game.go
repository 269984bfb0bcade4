package main

import (
	"crypto/rand"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type gameStatus string

const (
	statusLobby     gameStatus = "lobby"
	statusActive    gameStatus = "active"
	statusQuestion  gameStatus = "question"
	statusCompleted gameStatus = "completed"
)

// Player is a joined participant, identified by a process-local id derived
// from join order.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Question is supplied by the host per round and discarded once the round's
// results have been broadcast.
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

func (q *Question) validate() error {
	if q == nil || q.Text == "" || len(q.Options) < 2 || !slices.Contains(q.Options, q.CorrectAnswer) {
		return errValidation("Invalid question data format")
	}
	return nil
}

// Game holds one session's full state. Every field is guarded by mu; all
// reads and writes for one PIN serialize on it while separate games proceed
// in parallel.
type Game struct {
	mu sync.Mutex

	pin        string
	hostID     string
	status     gameStatus
	createdAt  time.Time
	lastActive time.Time

	maxPlayers int
	scoring    scoreConfig

	players map[string]Player
	scores  map[string]int
	streaks map[string]int
	joined  int // total players ever admitted; ids stay unique across removals

	round           int
	currentQuestion *Question
	questionStart   time.Time
	answers         map[string]Answer
	timer           *time.Timer // armed round deadline, nil when no round is open
}

// roundSummary is the committed outcome of a closed round, with its own map
// copies so broadcasting never races later mutations.
type roundSummary struct {
	CorrectAnswer string
	Results       map[string]RoundResult
	Scores        map[string]int
	Streaks       map[string]int
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// snapshot returns the status line served by GET /game/:pin/status.
func (g *Game) snapshot() (gameStatus, int, []Player) {
	g.mu.Lock()
	defer g.mu.Unlock()

	players := make([]Player, 0, len(g.players))
	for _, p := range g.players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b Player) int {
		if a.JoinedAt.Equal(b.JoinedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.JoinedAt.Before(b.JoinedAt) {
			return -1
		}
		return 1
	})

	return g.status, len(g.players), players
}

// join admits a player to the lobby, or returns the existing player when the
// name was already issued an id (idempotent rejoin, scores untouched).
func (g *Game) join(name string) (Player, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastActive = time.Now()

	switch g.status {
	case statusCompleted:
		return Player{}, 0, errStateConflict("Game is completed")
	case statusActive, statusQuestion:
		return Player{}, 0, errStateConflict("Game has already started")
	}

	for _, p := range g.players {
		if p.Name == name {
			return p, len(g.players), nil
		}
	}

	if len(g.players) >= g.maxPlayers {
		return Player{}, 0, errStateConflict("Game is full")
	}

	g.joined++
	player := Player{
		ID:       fmt.Sprintf("player_%d", g.joined),
		Name:     name,
		JoinedAt: time.Now(),
	}
	g.players[player.ID] = player
	g.scores[player.ID] = 0
	g.streaks[player.ID] = 0

	return player, len(g.players), nil
}

// start moves the session out of the lobby. Allowed from lobby or active so
// a host may re-signal a start between rounds.
func (g *Game) start(hostID string, minPlayers int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastActive = time.Now()

	if hostID != g.hostID {
		return errForbidden("Not authorized to start this game")
	}
	if g.status == statusCompleted {
		return errStateConflict("Cannot start completed game")
	}
	if g.status == statusQuestion {
		return errStateConflict("Question round in progress")
	}
	if minPlayers > 0 && len(g.players) < minPlayers {
		return errStateConflict("Not enough players")
	}

	g.status = statusActive

	return nil
}

// startQuestion opens a new round: the answer set resets, the round counter
// increments, and any deadline timer still armed for a previous round is
// cancelled before the caller arms a fresh one.
func (g *Game) startQuestion(hostID string, q Question) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastActive = time.Now()

	if hostID != g.hostID {
		return 0, errForbidden("Not authorized to start questions")
	}
	if g.status != statusActive {
		return 0, errStateConflict("Game not in active state")
	}
	if err := q.validate(); err != nil {
		return 0, err
	}

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}

	g.round++
	g.status = statusQuestion
	g.currentQuestion = &q
	g.questionStart = time.Now()
	g.answers = make(map[string]Answer)

	return g.round, nil
}

// submitAnswer records one player's choice for the open round. It reports
// the round it landed in and whether every joined player has now answered,
// which lets the round controller close the round early.
func (g *Game) submitAnswer(playerID, choice string) (Answer, Player, int, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastActive = time.Now()

	if g.status != statusQuestion || g.currentQuestion == nil {
		return Answer{}, Player{}, 0, false, errStateConflict("No active question")
	}

	player, ok := g.players[playerID]
	if !ok {
		return Answer{}, Player{}, 0, false, errNotFound("Player not found")
	}
	if _, ok := g.answers[playerID]; ok {
		return Answer{}, Player{}, 0, false, errStateConflict("Answer already submitted")
	}
	if !slices.Contains(g.currentQuestion.Options, choice) {
		return Answer{}, Player{}, 0, false, errValidation("Invalid answer option")
	}

	elapsed := time.Since(g.questionStart).Seconds()
	if elapsed > g.scoring.timeLimit {
		return Answer{}, Player{}, 0, false, errStateConflict("Time expired")
	}

	answer := Answer{Choice: choice, TimeTaken: elapsed}
	g.answers[playerID] = answer

	return answer, player, g.round, len(g.answers) == len(g.players), nil
}

// closeRound scores and clears the open round. It is the single funnel for
// both the deadline timer and the all-answered path: the round sequence
// guard makes a second invocation, or a stale timer firing for an earlier
// round, a no-op.
func (g *Game) closeRound(round int) (roundSummary, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != statusQuestion || g.currentQuestion == nil || g.round != round {
		return roundSummary{}, false
	}

	g.lastActive = time.Now()

	correct := g.currentQuestion.CorrectAnswer
	scores, streaks, results := scoreRound(g.scoring, correct, g.answers, g.scores, g.streaks)
	g.scores = scores
	g.streaks = streaks

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.currentQuestion = nil
	g.questionStart = time.Time{}
	g.answers = make(map[string]Answer)
	g.status = statusActive

	return roundSummary{
		CorrectAnswer: correct,
		Results:       results,
		Scores:        copyIntMap(g.scores),
		Streaks:       copyIntMap(g.streaks),
	}, true
}

// end moves the session to its terminal state. Calling it on a completed
// game is rejected, preserving the first end's final standings.
func (g *Game) end(hostID string) (map[string]int, map[string]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastActive = time.Now()

	if hostID != g.hostID {
		return nil, nil, errForbidden("Not authorized to end this game")
	}
	if g.status == statusCompleted {
		return nil, nil, errStateConflict("Game is completed")
	}

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.currentQuestion = nil
	g.questionStart = time.Time{}
	g.answers = make(map[string]Answer)
	g.status = statusCompleted

	return copyIntMap(g.scores), copyIntMap(g.streaks), nil
}

// removePlayer drops a disconnected player from every per-player set. The
// lifecycle state is untouched even when the last player leaves.
func (g *Game) removePlayer(playerID string) (Player, int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	player, ok := g.players[playerID]
	if !ok {
		return Player{}, len(g.players), false
	}

	g.lastActive = time.Now()

	delete(g.players, playerID)
	delete(g.scores, playerID)
	delete(g.streaks, playerID)
	delete(g.answers, playerID)

	return player, len(g.players), true
}

// teardown releases the round timer; used by the reaper when discarding an
// idle session.
func (g *Game) teardown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *Game) idleSince() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.lastActive
}

// broadcaster delivers an event to every live connection in a session's
// room. Implemented by Router; faked in tests.
type broadcaster interface {
	Broadcast(pin string, message any)
}

// GameManager owns the authoritative PIN → Game registry.
type GameManager struct {
	mu     sync.Mutex
	games  map[string]*Game
	cfg    *Config
	notify broadcaster
}

func newGameManager(cfg *Config, notify broadcaster) *GameManager {
	gm := &GameManager{
		games:  make(map[string]*Game),
		cfg:    cfg,
		notify: notify,
	}
	if cfg.sessionTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

const pinDigits = 6

// randomPIN draws a 6-digit numeric string from crypto/rand. Collisions are
// resolved by the caller re-sampling, never by incrementing.
func randomPIN() string {
	const digits = "0123456789"

	buf := make([]byte, pinDigits)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	out := make([]byte, pinDigits)
	for i := range out {
		out[i] = digits[int(buf[i])%len(digits)]
	}
	return string(out)
}

// create allocates a collision-free PIN and registers a new lobby owned by
// the given host. The check-and-insert happens under the registry lock so
// two concurrent creates can never share a PIN.
func (gm *GameManager) create(hostID string) *Game {
	for {
		pin := randomPIN()

		gm.mu.Lock()
		if _, exists := gm.games[pin]; exists {
			gm.mu.Unlock()
			continue
		}

		now := time.Now()
		game := &Game{
			pin:        pin,
			hostID:     hostID,
			status:     statusLobby,
			createdAt:  now,
			lastActive: now,
			maxPlayers: gm.cfg.maxPlayers,
			scoring: scoreConfig{
				basePoints:   gm.cfg.basePoints,
				maxTimeBonus: gm.cfg.maxTimeBonus,
				streakBonus:  gm.cfg.streakBonus,
				timeLimit:    gm.cfg.questionTime.Seconds(),
			},
			players: make(map[string]Player),
			scores:  make(map[string]int),
			streaks: make(map[string]int),
			answers: make(map[string]Answer),
		}
		gm.games[pin] = game
		gm.mu.Unlock()

		log.Info().Str("pin", pin).Str("host", hostID).Msg("game created")

		return game
	}
}

func (gm *GameManager) lookup(pin string) (*Game, bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	game, ok := gm.games[pin]
	return game, ok
}

// reaperLoop periodically discards games that have been idle longer than
// the configured session timeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.cfg.sessionTimeout)

		gm.mu.Lock()
		for pin, game := range gm.games {
			if game.idleSince().Before(cutoff) {
				delete(gm.games, pin)
				game.teardown()
				log.Info().Str("pin", pin).Msg("idle game reaped")
			}
		}
		gm.mu.Unlock()
	}
}
