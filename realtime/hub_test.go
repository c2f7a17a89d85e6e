package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/civicregistry/models"
)

func TestHubDeliversLedgerEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(models.LedgerEvent{OperationID: "op-1", ChangeType: models.ChangeSplit, HouseholdCode: "HK0001"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "ledger", ev.Type)
	require.NotNil(t, ev.Ledger)
	assert.Equal(t, "op-1", ev.Ledger.OperationID)
	assert.Equal(t, models.ChangeSplit, ev.Ledger.ChangeType)
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	hub := NewHub([]string{"http://allowed.test"}, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := map[string][]string{"Origin": {"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 403, resp.StatusCode)
	}
}

func TestHubServeWSReturnsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	served := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r)
		served <- struct{}{}
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	// the hub closed the connection; the handler must not block unregistering
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeWS still blocked after hub shutdown")
	}

	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		defer late.Close()
	}
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeWS blocked registering a client on a stopped hub")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
