package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/ballistics/internal/config"
	"github.com/zeusync/ballistics/internal/core/aiming"
	"github.com/zeusync/ballistics/internal/core/systems/ballistics"
	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

func newTestServer() *Server {
	cfg := config.Default().Server
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MaxBatchSize = 4
	aimer := aiming.NewAimer(aiming.Options{
		Scatter: ballistics.NewSeededScatter(7),
		Cache:   aiming.NewCache(2, 32),
		Workers: 2,
	})
	return NewServer(cfg, aimer, nil)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(url, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, env Envelope) Envelope {
	t.Helper()
	require.NoError(t, conn.WriteJSON(env))
	var reply Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestWebSocketAim(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	conn := dial(t, ts.URL)

	reply := roundTrip(t, conn, Envelope{
		ID:   "a1",
		Type: TypeAim,
		Payload: mustPayload(t, aiming.Request{
			Target:  physics.NewVec3(50, 0, 0),
			Gravity: physics.NewVec3(0, 0, -9.8),
			Speed:   40,
		}),
	})
	require.Equal(t, TypeAim, reply.Type, reply.Error)
	assert.Equal(t, "a1", reply.ID)

	var resp aiming.Response
	require.NoError(t, json.Unmarshal(reply.Payload, &resp))
	assert.Equal(t, "a1", resp.ID)
	assert.True(t, resp.Result.WillHit)
	assert.Equal(t, ballistics.OutcomeGeneral, resp.Result.Outcome)
	assert.InDelta(t, 1, resp.Aim.Length(), 1e-9)
}

func TestWebSocketUnreachableHasNullTime(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	conn := dial(t, ts.URL)

	reply := roundTrip(t, conn, Envelope{
		ID:   "far",
		Type: TypeAim,
		Payload: mustPayload(t, aiming.Request{
			Target:  physics.NewVec3(0, 0, 50),
			Gravity: physics.NewVec3(0, 0, -10),
			Speed:   20,
		}),
	})
	require.Equal(t, TypeAim, reply.Type, reply.Error)
	assert.Contains(t, string(reply.Payload), `"time":null`)

	var resp aiming.Response
	require.NoError(t, json.Unmarshal(reply.Payload, &resp))
	assert.False(t, resp.Result.WillHit)
	assert.True(t, math.IsInf(resp.Result.Time, 1))
}

func TestWebSocketBatchAndScatter(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	conn := dial(t, ts.URL)

	reqs := []aiming.Request{
		{ID: "x", Target: physics.NewVec3(30, 0, 0), Speed: 10},
		{ID: "y", Target: physics.NewVec3(0, 30, 0), Gravity: physics.NewVec3(0, 0, -9.8), Speed: 25},
	}
	reply := roundTrip(t, conn, Envelope{ID: "b", Type: TypeAimBatch, Payload: mustPayload(t, BatchRequest{Requests: reqs})})
	require.Equal(t, TypeAimBatch, reply.Type, reply.Error)

	var batch BatchResponse
	require.NoError(t, json.Unmarshal(reply.Payload, &batch))
	require.Len(t, batch.Responses, 2)
	assert.Equal(t, "x", batch.Responses[0].ID)
	assert.InDelta(t, 3, batch.Responses[0].Result.Time, 1e-12)
	assert.Equal(t, "y", batch.Responses[1].ID)

	reply = roundTrip(t, conn, Envelope{ID: "s", Type: TypeScatter, Payload: mustPayload(t, ScatterRequest{
		Origin: physics.NewVec3(0, 0, 2),
		Angle:  10,
	})})
	require.Equal(t, TypeScatter, reply.Type, reply.Error)

	var scattered ScatterResponse
	require.NoError(t, json.Unmarshal(reply.Payload, &scattered))
	assert.InDelta(t, 2, scattered.Direction.Length(), 1e-12)
	assert.InDelta(t, 2*math.Cos(10*math.Pi/180), scattered.Direction.Z, 1e-9)
}

func TestWebSocketErrorsKeepConnectionOpen(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	conn := dial(t, ts.URL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var reply Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, TypeError, reply.Type)
	assert.Contains(t, reply.Error, ErrInvalidMessage.Error())

	reply = roundTrip(t, conn, Envelope{ID: "u", Type: "teleport"})
	assert.Equal(t, TypeError, reply.Type)
	assert.Equal(t, "u", reply.ID)
	assert.Contains(t, reply.Error, ErrUnknownMessageType.Error())

	reply = roundTrip(t, conn, Envelope{ID: "m", Type: TypeAim})
	assert.Equal(t, TypeError, reply.Type)
	assert.Contains(t, reply.Error, "missing payload")

	tooMany := make([]aiming.Request, 5)
	reply = roundTrip(t, conn, Envelope{ID: "big", Type: TypeAimBatch, Payload: mustPayload(t, BatchRequest{Requests: tooMany})})
	assert.Equal(t, TypeError, reply.Type)
	assert.Contains(t, reply.Error, ErrBatchTooLarge.Error())

	reply = roundTrip(t, conn, Envelope{ID: "st", Type: TypeStats})
	require.Equal(t, TypeStats, reply.Type, reply.Error)
	var stats Stats
	require.NoError(t, json.Unmarshal(reply.Payload, &stats))
	assert.Equal(t, int64(1), stats.ClientCount)
	assert.Equal(t, uint64(4), stats.MessagesTotal)
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrServerAlreadyRunning)

	url := "http://" + s.Addr().String()
	resp, err := http.Get(url + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return s.GetStats().ClientCount == 1 }, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.ErrorIs(t, s.Stop(stopCtx), ErrServerNotRunning)

	// the client sees the connection go away
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Start(ctx), ErrServerClosed)
}

func TestServerStartBadAddress(t *testing.T) {
	s := newTestServer()
	s.config.ListenAddr = "127.0.0.1:99999"
	assert.ErrorIs(t, s.Start(context.Background()), ErrListenerFailed)
	assert.False(t, s.GetStats().Running)
}
