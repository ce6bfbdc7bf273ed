package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Artfain/chainsim/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type wireReply struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *core.State) {
	t.Helper()
	journal, err := core.NewLevelJournal()
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	state, err := core.NewState(core.StateConfig{
		Blocks:     3,
		Genesis:    core.Payload{To: "0x0000->0x0000"},
		Difficulty: 1,
	}, journal, nil)
	require.NoError(t, err)
	t.Cleanup(state.Close)

	srv := NewServer(state, opts, nil)
	ts := httptest.NewServer(srv.Handler(""))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return ts, state
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wireReply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var r wireReply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

// readState skips messages until a state snapshot matching ok arrives.
func readState(t *testing.T, conn *websocket.Conn, ok func(core.Snapshot) bool) core.Snapshot {
	t.Helper()
	for {
		r := read(t, conn)
		if r.Type != TypeState {
			continue
		}
		var snap core.Snapshot
		require.NoError(t, json.Unmarshal(r.Data, &snap))
		if ok(snap) {
			return snap
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: typ, Data: raw}))
}

func TestWebSocketInitialState(t *testing.T) {
	ts, _ := newTestServer(t, DefaultOptions())
	conn := dial(t, ts)

	snap := readState(t, conn, func(core.Snapshot) bool { return true })
	require.Len(t, snap.Blocks, 3)
	require.Len(t, snap.Validity, 3)
	require.Equal(t, 1, snap.Blocks[0].Index)
	require.Equal(t, "0", snap.Blocks[0].PreviousHash)
	require.NotEmpty(t, snap.Blocks[0].HashBase58)
	require.Nil(t, snap.Blocks[0].MiningTimeMs)
}

func TestWebSocketMineAndEditBroadcast(t *testing.T) {
	ts, _ := newTestServer(t, DefaultOptions())
	a := dial(t, ts)
	b := dial(t, ts)
	readState(t, a, func(core.Snapshot) bool { return true })
	readState(t, b, func(core.Snapshot) bool { return true })

	send(t, a, TypeMine, indexData{Index: 0})
	mined := func(s core.Snapshot) bool { return s.Blocks[0].MiningTimeMs != nil }
	snap := readState(t, a, mined)
	require.True(t, snap.Validity[0])
	require.Equal(t, snap.Blocks[0].Hash, snap.Blocks[1].PreviousHash)
	readState(t, b, mined)

	send(t, b, TypeEdit, map[string]any{"index": 1, "field": "amount", "value": 5})
	edited := func(s core.Snapshot) bool { return s.Blocks[1].Data.Amount == 5 }
	snap = readState(t, a, edited)
	require.Equal(t, uint64(0), snap.Blocks[1].Nonce)
	require.Equal(t, snap.Blocks[1].Hash, snap.Blocks[2].PreviousHash)
	readState(t, b, edited)
}

func TestWebSocketErrors(t *testing.T) {
	ts, state := newTestServer(t, DefaultOptions())
	conn := dial(t, ts)
	readState(t, conn, func(core.Snapshot) bool { return true })
	before := state.Snapshot()

	send(t, conn, TypeEdit, map[string]any{"index": 9, "field": "amount", "value": "1"})
	r := read(t, conn)
	require.Equal(t, TypeError, r.Type)
	require.Contains(t, r.Error, "out of range")

	send(t, conn, TypeEdit, map[string]any{"index": 0, "field": "amount", "value": "abc"})
	r = read(t, conn)
	require.Equal(t, TypeError, r.Type)
	require.Contains(t, r.Error, "invalid amount")

	send(t, conn, TypeDifficulty, difficultyData{Difficulty: 99})
	r = read(t, conn)
	require.Equal(t, TypeError, r.Type)

	send(t, conn, "teleport", nil)
	r = read(t, conn)
	require.Equal(t, TypeError, r.Type)
	require.Contains(t, r.Error, "unknown message type")

	require.Equal(t, before, state.Snapshot())
}

func TestWebSocketMineRateLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MineLimit = rate.Every(time.Hour)
	opts.MineBurst = 1
	ts, _ := newTestServer(t, opts)
	conn := dial(t, ts)
	readState(t, conn, func(core.Snapshot) bool { return true })

	send(t, conn, TypeMine, indexData{Index: 0})
	send(t, conn, TypeMine, indexData{Index: 1})
	for {
		r := read(t, conn)
		if r.Type == TypeError {
			require.Contains(t, r.Error, "rate limit")
			return
		}
	}
}

func TestWebSocketHandshakeLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.HandshakeLimit = rate.Every(time.Hour)
	opts.HandshakeBurst = 1
	ts, _ := newTestServer(t, opts)
	dial(t, ts)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebSocketDifficultyAndReset(t *testing.T) {
	ts, _ := newTestServer(t, DefaultOptions())
	conn := dial(t, ts)
	readState(t, conn, func(core.Snapshot) bool { return true })

	send(t, conn, TypeDifficulty, difficultyData{Difficulty: 3})
	snap := readState(t, conn, func(s core.Snapshot) bool { return s.Difficulty == 3 })
	for _, b := range snap.Blocks {
		require.Equal(t, 3, b.Difficulty)
	}

	send(t, conn, TypeEdit, map[string]any{"index": 0, "field": "to", "value": "bob"})
	readState(t, conn, func(s core.Snapshot) bool { return s.Blocks[0].Data.To == "bob" })

	send(t, conn, TypeReset, nil)
	snap = readState(t, conn, func(s core.Snapshot) bool { return s.Blocks[0].Data.To == "0x0000->0x0000" })
	require.Equal(t, 3, snap.Difficulty)

	send(t, conn, TypeSnapshot, nil)
	later := readState(t, conn, func(core.Snapshot) bool { return true })
	require.Equal(t, snap.Version, later.Version)
}
