package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

// Events coming from clients, one envelope for every room action.
type clientEvent struct {
	Type     string    `json:"type"`                // "join_game", "start_game", "start_question", "submit_answer"
	PIN      string    `json:"pin,omitempty"`       // all events
	Name     string    `json:"name,omitempty"`      // join_game
	Token    string    `json:"token,omitempty"`     // start_game / start_question
	PlayerID string    `json:"player_id,omitempty"` // submit_answer
	Answer   string    `json:"answer,omitempty"`    // submit_answer
	Question *Question `json:"question,omitempty"`  // start_question
}

// Messages sent to clients.
type errorMessage struct {
	Type  string `json:"type"` // "error"
	Error string `json:"error"`
}

type playerJoinedMessage struct {
	Type        string `json:"type"` // "player_joined"
	Player      Player `json:"player"`
	PlayerCount int    `json:"player_count"`
}

type gameStartedMessage struct {
	Type   string `json:"type"` // "game_started"
	Status string `json:"status"`
}

type questionStartedMessage struct {
	Type      string   `json:"type"` // "question_started"
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"time_limit"` // seconds
	Round     int      `json:"round"`
}

// Sent only to the submitter, acknowledging their answer.
type answerAcceptedMessage struct {
	Type      string  `json:"type"` // "answer_accepted"
	TimeTaken float64 `json:"time_taken"`
}

// Broadcast to the room when someone answers; reveals who, never what.
type answerSubmittedMessage struct {
	Type       string `json:"type"` // "answer_submitted"
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

type questionEndedMessage struct {
	Type          string                 `json:"type"` // "question_ended"
	CorrectAnswer string                 `json:"correct_answer"`
	Results       map[string]RoundResult `json:"results"`
	Scores        map[string]int         `json:"scores"`
	Streaks       map[string]int         `json:"streaks"`
}

type playerLeftMessage struct {
	Type        string `json:"type"` // "player_left"
	Player      Player `json:"player"`
	PlayerCount int    `json:"player_count"`
}

type gameEndedMessage struct {
	Type         string         `json:"type"` // "game_ended"
	FinalScores  map[string]int `json:"final_scores"`
	FinalStreaks map[string]int `json:"final_streaks"`
}

type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan any
	closed    bool // guarded by Router.mu; set once the send channel is closed
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, 8),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

type binding struct {
	pin      string
	playerID string
}

// Router maps each live connection to at most one (PIN, player) pair and
// tracks room membership for broadcast targeting.
type Router struct {
	mu       sync.Mutex
	rooms    map[string]map[*Client]bool
	bindings map[*Client]binding
}

func newRouter() *Router {
	return &Router{
		rooms:    make(map[string]map[*Client]bool),
		bindings: make(map[*Client]binding),
	}
}

// bind places a client in a session's room. A player already bound on a
// different connection has that stale binding released first, so a rejoin
// never leaves two connections answering as one player.
func (r *Router) bind(c *Client, pin, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.closed {
		return
	}

	for other, b := range r.bindings {
		if other != c && b.pin == pin && b.playerID == playerID {
			r.dropLocked(other)
		}
	}

	if old, ok := r.bindings[c]; ok && old.pin != pin {
		if room, ok := r.rooms[old.pin]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(r.rooms, old.pin)
			}
		}
	}

	room, ok := r.rooms[pin]
	if !ok {
		room = make(map[*Client]bool)
		r.rooms[pin] = room
	}
	room[c] = true
	r.bindings[c] = binding{pin: pin, playerID: playerID}
}

// release removes a client's room membership and returns the binding it
// held, if any. The client's send channel is closed so its write pump ends.
func (r *Router) release(c *Client) (binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[c]
	r.dropLocked(c)
	return b, ok
}

func (r *Router) dropLocked(c *Client) {
	c.closed = true
	if b, ok := r.bindings[c]; ok {
		if room, ok := r.rooms[b.pin]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(r.rooms, b.pin)
			}
		}
		delete(r.bindings, c)
	}
	c.close()
}

// Broadcast delivers a message to every connection in a session's room.
// Delivery is fire-and-forget: a client that cannot keep up is dropped
// rather than blocking the rest of the room or the triggering transition.
func (r *Router) Broadcast(pin string, message any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for client := range r.rooms[pin] {
		select {
		case client.send <- message:
		default:
			r.dropLocked(client)
		}
	}
}

// sendTo delivers a message to a single client, best-effort.
func (r *Router) sendTo(c *Client, message any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- message:
	default:
		r.dropLocked(c)
	}
}

// roomServer dispatches room events into the per-session registry and fans
// the outcome back out through the router.
type roomServer struct {
	cfg    *Config
	gm     *GameManager
	router *Router
	auth   *authClient
}

func (rs *roomServer) handleJoin(c *Client, event clientEvent) {
	if event.PIN == "" || event.Name == "" {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Missing required field: name"})
		return
	}

	game, ok := rs.gm.lookup(event.PIN)
	if !ok {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Game not found"})
		return
	}

	player, count, err := game.join(event.Name)
	if err != nil {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: err.Error()})
		return
	}

	rs.router.bind(c, event.PIN, player.ID)

	log.Debug().Str("pin", event.PIN).Str("player", player.ID).Str("name", player.Name).Msg("player joined")

	rs.router.Broadcast(event.PIN, playerJoinedMessage{
		Type:        "player_joined",
		Player:      player,
		PlayerCount: count,
	})
}

func (rs *roomServer) handleStartGame(c *Client, event clientEvent) {
	if event.PIN == "" || event.Token == "" {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Missing required fields"})
		return
	}

	game, ok := rs.gm.lookup(event.PIN)
	if !ok {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Game not found"})
		return
	}

	hostID, err := rs.auth.verify(event.Token)
	if err != nil {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: err.Error()})
		return
	}

	if err := game.start(hostID, rs.cfg.minPlayers); err != nil {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: err.Error()})
		return
	}

	rs.router.Broadcast(event.PIN, gameStartedMessage{Type: "game_started", Status: string(statusActive)})
}

func (rs *roomServer) handleStartQuestion(c *Client, event clientEvent) {
	if event.PIN == "" || event.Token == "" || event.Question == nil {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Missing required fields"})
		return
	}

	game, ok := rs.gm.lookup(event.PIN)
	if !ok {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Game not found"})
		return
	}

	hostID, err := rs.auth.verify(event.Token)
	if err != nil {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: err.Error()})
		return
	}

	round, err := rs.gm.startQuestion(game, hostID, *event.Question)
	if err != nil {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: err.Error()})
		return
	}

	rs.router.Broadcast(event.PIN, questionStartedMessage{
		Type:      "question_started",
		Question:  event.Question.Text,
		Options:   event.Question.Options,
		TimeLimit: int(rs.cfg.questionTime.Seconds()),
		Round:     round,
	})
}

func (rs *roomServer) handleSubmitAnswer(c *Client, event clientEvent) {
	if event.PIN == "" || event.PlayerID == "" || event.Answer == "" {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Missing required fields"})
		return
	}

	game, ok := rs.gm.lookup(event.PIN)
	if !ok {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: "Game not found"})
		return
	}

	answer, player, round, allAnswered, err := game.submitAnswer(event.PlayerID, event.Answer)
	if err != nil {
		rs.router.sendTo(c, errorMessage{Type: "error", Error: err.Error()})
		return
	}

	rs.router.sendTo(c, answerAcceptedMessage{Type: "answer_accepted", TimeTaken: answer.TimeTaken})

	rs.router.Broadcast(event.PIN, answerSubmittedMessage{
		Type:       "answer_submitted",
		PlayerID:   player.ID,
		PlayerName: player.Name,
	})

	if allAnswered {
		rs.gm.endQuestion(game, round)
	}
}

// handleDisconnect removes the departed player from their game and informs
// the room. Lifecycle state is untouched even when the room empties.
func (rs *roomServer) handleDisconnect(c *Client) {
	b, ok := rs.router.release(c)
	if !ok {
		return
	}

	game, ok := rs.gm.lookup(b.pin)
	if !ok {
		return
	}

	player, count, removed := game.removePlayer(b.playerID)
	if !removed {
		return
	}

	log.Debug().Str("conn", c.id).Str("pin", b.pin).Str("player", player.ID).Msg("player disconnected")

	rs.router.Broadcast(b.pin, playerLeftMessage{
		Type:        "player_left",
		Player:      player,
		PlayerCount: count,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(rs *roomServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := newClient(conn)

		log.Debug().Str("conn", client.id).Str("client", realIP(r)).Msg("websocket connected")

		go client.writePump()
		client.readPump(rs)
	}
}

func (c *Client) readPump(rs *roomServer) {
	defer func() {
		rs.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var event clientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			rs.router.sendTo(c, errorMessage{Type: "error", Error: "Invalid request format"})
			continue
		}

		switch event.Type {
		case "join_game":
			rs.handleJoin(c, event)
		case "start_game":
			rs.handleStartGame(c, event)
		case "start_question":
			rs.handleStartQuestion(c, event)
		case "submit_answer":
			rs.handleSubmitAnswer(c, event)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
