package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/logging"
)

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}, logging.Default("telemetry-test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// Registration goes through the hub's channel; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	reading := Reading{
		ClientID:    "CLIENT01",
		Measurement: "temperature",
		Value:       21.5,
		Timestamp:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	var got Reading
	for {
		hub.Broadcast(reading)

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)) //nolint:errcheck // test deadline
		_, payload, err := conn.ReadMessage()
		if err == nil {
			if err := json.Unmarshal(payload, &got); err != nil {
				t.Fatalf("decoding broadcast: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no broadcast received: %v", err)
		}
	}

	if got.ClientID != "CLIENT01" || got.Measurement != "temperature" || got.Value != 21.5 {
		t.Errorf("received reading = %+v", got)
	}
}
