package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Artfain/chainsim/core"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client message types.
const (
	TypeSnapshot   = "snapshot"
	TypeReset      = "reset"
	TypeEdit       = "edit"
	TypeMine       = "mine"
	TypeCancel     = "cancel"
	TypeDifficulty = "difficulty"
)

// Server message types.
const (
	TypeState = "state"
	TypeError = "error"
)

var errRateLimited = errors.New("rate limit exceeded")

const writeWait = 10 * time.Second

// Message is a client request over the websocket.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply is a server message over the websocket.
type Reply struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type editData struct {
	Index int             `json:"index"`
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type indexData struct {
	Index int `json:"index"`
}

type difficultyData struct {
	Difficulty int `json:"difficulty"`
}

// Options tunes the server's limits and keepalive.
type Options struct {
	HandshakeLimit rate.Limit
	HandshakeBurst int
	MineLimit      rate.Limit // per connection
	MineBurst      int
	PingInterval   time.Duration
	ReadTimeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		HandshakeLimit: rate.Every(time.Minute / 100),
		HandshakeBurst: 100,
		MineLimit:      rate.Limit(2),
		MineBurst:      5,
		PingInterval:   30 * time.Second,
		ReadTimeout:    180 * time.Second,
	}
}

// Server exposes a core.State over a websocket and a few REST reads, and
// pushes every new snapshot to all connected clients.
type Server struct {
	state      *core.State
	opts       Options
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	handshakes *rate.Limiter

	mu          sync.Mutex
	clients     map[*client]struct{}
	unsubscribe func()
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	mines   *rate.Limiter
}

func (c *client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func NewServer(state *core.State, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		state:  state,
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // the simulation has no authenticated origin
			},
		},
		handshakes: rate.NewLimiter(opts.HandshakeLimit, opts.HandshakeBurst),
		clients:    make(map[*client]struct{}),
	}
	s.unsubscribe = state.Subscribe(s.broadcast)
	return s
}

// Handler returns the HTTP routes. staticDir, when not empty, is served at /.
func (s *Server) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	s.registerREST(mux)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// Close stops broadcasting and closes every connection.
func (s *Server) Close() {
	s.unsubscribe()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
		delete(s.clients, c)
	}
}

func (s *Server) broadcast(snap core.Snapshot) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	msg := Reply{Type: TypeState, Data: snap}
	for _, c := range clients {
		if err := c.write(msg); err != nil {
			s.logger.Error("Error broadcasting state", "remote", c.conn.RemoteAddr().String(), "error", err)
			s.drop(c)
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.handshakes.Allow() {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}

	c := &client{conn: conn, mines: rate.NewLimiter(s.opts.MineLimit, s.opts.MineBurst)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer s.drop(c)

	remote := conn.RemoteAddr().String()
	s.logger.Info("WebSocket connected", "remote", remote)

	if s.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
			return nil
		})
	}

	stop := make(chan struct{})
	defer close(stop)
	if s.opts.PingInterval > 0 {
		go s.keepalive(c, stop)
	}

	if err := c.write(Reply{Type: TypeState, Data: s.state.Snapshot()}); err != nil {
		s.logger.Error("Failed to send initial state", "remote", remote, "error", err)
		return
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("Failed to read WebSocket message", "remote", remote, "error", err)
			}
			s.logger.Info("WebSocket closed", "remote", remote)
			return
		}

		if err := s.dispatch(c, msg); err != nil {
			s.logger.Debug("Request rejected", "remote", remote, "type", msg.Type, "error", err)
			if werr := c.write(Reply{Type: TypeError, Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

func (s *Server) keepalive(c *client, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// dispatch runs one request. Successful mutations reach the client through
// the state subscription, not as a direct reply.
func (s *Server) dispatch(c *client, msg Message) error {
	switch msg.Type {
	case TypeSnapshot:
		return c.write(Reply{Type: TypeState, Data: s.state.Snapshot()})

	case TypeReset:
		_, err := s.state.Reset()
		return err

	case TypeEdit:
		var data editData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("invalid data: %v", err)
		}
		_, err := s.state.Edit(data.Index, data.Field, rawValue(data.Value))
		return err

	case TypeMine:
		var data indexData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("invalid data: %v", err)
		}
		if !c.mines.Allow() {
			return errRateLimited
		}
		_, err := s.state.StartMine(data.Index)
		return err

	case TypeCancel:
		var data indexData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("invalid data: %v", err)
		}
		s.state.Cancel(data.Index)
		return nil

	case TypeDifficulty:
		var data difficultyData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("invalid data: %v", err)
		}
		_, err := s.state.SetDifficulty(data.Difficulty)
		return err

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// rawValue accepts both "5" and 5 from input widgets.
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
