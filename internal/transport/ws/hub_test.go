package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/pipeline"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func statusEvent(entityID string, to domain.SafetyStatus) pipeline.Event {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return pipeline.Event{
		Kind:     pipeline.EventStatus,
		EntityID: entityID,
		At:       at,
		Status:   &domain.StatusChange{EntityID: entityID, At: at, To: to},
	}
}

func TestHub_StreamsEvents(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(statusEvent("e1", domain.StatusDanger))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type     string              `json:"type"`
		EntityID string              `json:"entity_id"`
		Data     domain.StatusChange `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "e1", msg.EntityID)
	assert.Equal(t, domain.StatusDanger, msg.Data.To)
}

func TestHub_EntityFilter(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "?entity=e2")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(statusEvent("e1", domain.StatusDanger))
	hub.Broadcast(statusEvent("e2", domain.StatusWarning))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"entity_id":"e2"`)
	assert.NotContains(t, string(payload), `"entity_id":"e1"`)
}

func TestHub_RunClosesClientsWhenEventsEnd(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	events := make(chan pipeline.Event, 1)
	events <- statusEvent("e1", domain.StatusSafe)
	close(events)
	hub.Run(context.Background(), events)

	assert.Equal(t, 0, hub.Count())
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
