package ws

import (
	"bufio"
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

	"github.com/teknowguy/autopilot-backend/internal/events"
)

func TestChannelsForTopics(t *testing.T) {
	assert.Equal(t, events.AllChannels, channelsForTopics(nil))
	assert.Equal(t, events.AllChannels, channelsForTopics([]string{"posts", "*"}))
	assert.Equal(t, []string{events.ChannelProgress}, channelsForTopics([]string{" Progress ", "progress", "bogus"}))
	assert.Empty(t, channelsForTopics([]string{"bogus"}))
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:3000"}
	assert.True(t, originAllowed(allowed, ""))
	assert.True(t, originAllowed(allowed, "http://localhost:3000"))
	assert.False(t, originAllowed(allowed, "https://evil.example"))
	assert.True(t, originAllowed([]string{"*"}, "https://any.example"))
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestSSEStreamsSelectedTopics(t *testing.T) {
	bus := events.NewMemoryBus()
	h := NewSSEHandler(bus, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?topics=progress", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, _ := readEvent(t, reader)
	require.Equal(t, "connected", event)

	require.NoError(t, bus.Publish(ctx, events.ChannelNotifications, map[string]string{"message": "skip me"}))
	require.NoError(t, bus.Publish(ctx, events.ChannelProgress, map[string]any{"phase": "Finalizing", "percent": 80}))

	event, data := readEvent(t, reader)
	assert.Equal(t, TopicProgress, event)
	assert.JSONEq(t, `{"phase":"Finalizing","percent":80}`, data)
}

func TestSSERejectsUnknownTopics(t *testing.T) {
	h := NewSSEHandler(events.NewMemoryBus(), nil, nil)
	rec := httptest.NewRecorder()
	h.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/stream?topics=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHubDeliversSubscribedTopics(t *testing.T) {
	bus := events.NewMemoryBus()
	hub := NewHub(bus, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?topics=notifications"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, events.ChannelProgress, map[string]int{"percent": 10}))
	require.NoError(t, bus.Publish(ctx, events.ChannelNotifications, map[string]string{"message": "Initial Orchestration Live."}))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, TopicNotifications, msg.Topic)
	assert.JSONEq(t, `{"message":"Initial Orchestration Live."}`, string(msg.Data))
}

func TestHubSubscriptionMessages(t *testing.T) {
	c := &Client{topics: map[string]bool{}, hub: NewHub(events.NewMemoryBus(), nil, nil, nil)}
	c.handleMessage([]byte(`{"type":"subscribe","topics":["posts","progress"]}`))
	assert.True(t, c.isSubscribed(events.ChannelPosts))
	assert.True(t, c.isSubscribed(events.ChannelProgress))

	c.handleMessage([]byte(`{"type":"unsubscribe","topics":["posts"]}`))
	assert.False(t, c.isSubscribed(events.ChannelPosts))
	assert.True(t, c.isSubscribed(events.ChannelProgress))
}
