package events

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func TestBusFansOutPastFailingPublisher(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	healthy := &recordingPublisher{}
	bus := NewBus(failing, healthy)

	var heard []Type
	bus.Subscribe(func(event Event) { heard = append(heard, event.Type) })

	bus.Emit(context.Background(), NewToggleEvent(LikeToggled, "u1", "p1", true))

	assert.Len(t, failing.events, 1)
	require.Len(t, healthy.events, 1)
	assert.Equal(t, "p1", healthy.events[0].SubjectID)
	assert.Equal(t, []Type{LikeToggled}, heard)
}

func TestNilBusDiscards(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), NewEvent(PostCreated, "u1", "p1"))
	})
}

func TestToggleEventJson(t *testing.T) {
	data, err := json.Marshal(NewToggleEvent(SaveToggled, "u1", "p1", false))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "save.toggled", decoded["type"])
	assert.Equal(t, false, decoded["active"])
	assert.NotContains(t, decoded, "owner_id")
}

func TestHubDeliversToWebsocketClients(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), NewEvent(PostDeleted, "u1", "p9")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, PostDeleted, event.Type)
	assert.Equal(t, "p9", event.SubjectID)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNatsPublisher(t *testing.T) {
	natsURL := os.Getenv("TEST_NATS_URL")
	if natsURL == "" || testing.Short() {
		t.Skip("TEST_NATS_URL not set")
	}

	publisher, err := NewNatsPublisher(natsURL, "snapgram_test")
	require.NoError(t, err)
	defer publisher.Close()
	assert.Equal(t, "snapgram_test.follow.toggled", publisher.Subject(FollowToggled))

	conn, err := nats.Connect(natsURL)
	require.NoError(t, err)
	defer conn.Close()
	subscription, err := conn.SubscribeSync("snapgram_test.>")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	require.NoError(t, publisher.Publish(context.Background(), NewToggleEvent(FollowToggled, "a", "b", true)))

	message, err := subscription.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "snapgram_test.follow.toggled", message.Subject)

	var event Event
	require.NoError(t, json.Unmarshal(message.Data, &event))
	assert.Equal(t, "a", event.ActorID)
}
