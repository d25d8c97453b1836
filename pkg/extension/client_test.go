package extension

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer is a minimal scripted peer for the extension channel.
type testServer struct {
	*httptest.Server
	connects atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}

	mux := http.NewServeMux()
	mux.HandleFunc(protocol.Namespace, func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ts.connects.Add(1)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg protocol.Message
			if json.Unmarshal(data, &msg) != nil {
				continue
			}

			switch msg.Event {
			case protocol.EventExtensionConnect:
				ack, _ := protocol.NewResponse(msg.ID, msg.Event, map[string]interface{}{"status": "connected"})
				writeMsg(conn, ack)

				replay, _ := protocol.NewNotification(protocol.EventLogEvent, protocol.LogEvent{
					Timestamp:  protocol.Now(),
					Level:      protocol.LevelInfo,
					EventType:  protocol.EventTypeLog,
					LoggerName: "server",
					Message:    "replayed",
				})
				writeMsg(conn, replay)

				status, _ := protocol.NewNotification(protocol.EventStatus, protocol.TaskStatus{IsRunning: true})
				writeMsg(conn, status)

			case protocol.EventGetStatus:
				resp, _ := protocol.NewResponse(msg.ID, protocol.EventStatus, protocol.TaskStatus{IsRunning: true, HasAgent: true})
				writeMsg(conn, resp)

			case protocol.EventStopTask:
				resp, _ := protocol.NewError(msg.ID, "no task running", nil)
				writeMsg(conn, resp)
			}
		}
	})

	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeMsg(conn *websocket.Conn, msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func wsURL(ts *testServer) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClient_HandshakeDeliversReplayThenStatus(t *testing.T) {
	ts := newTestServer(t)

	logs := make(chan protocol.LogEvent, 8)
	statuses := make(chan protocol.TaskStatus, 8)
	client := NewClient(wsURL(ts), Callbacks{
		OnLogEvent: func(e protocol.LogEvent) { logs <- e },
		OnStatus:   func(s protocol.TaskStatus) { statuses <- s },
	})
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case event := <-logs:
		if event.Message != "replayed" {
			t.Errorf("Unexpected replayed event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the replayed log event")
	}

	select {
	case status := <-statuses:
		if !status.IsRunning {
			t.Errorf("Unexpected status: %+v", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the status push")
	}
}

func TestClient_RequestResponse(t *testing.T) {
	ts := newTestServer(t)

	client := NewClient(wsURL(ts), Callbacks{})
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	status, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if !status.IsRunning || !status.HasAgent {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestClient_ServerErrorSurfaced(t *testing.T) {
	ts := newTestServer(t)

	client := NewClient(wsURL(ts), Callbacks{})
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := client.StopTask(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no task running") {
		t.Errorf("Expected the server error to surface, got %v", err)
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect test waits out the retry delay")
	}
	ts := newTestServer(t)

	statuses := make(chan protocol.TaskStatus, 8)
	client := NewClient(wsURL(ts), Callbacks{
		OnStatus: func(s protocol.TaskStatus) { statuses <- s },
	})
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-statuses:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the first handshake")
	}

	// Drop the connection server-side; the client redials and repeats
	// the handshake, yielding a second status push.
	ts.CloseClientConnections()

	select {
	case <-statuses:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the reconnect handshake")
	}

	if got := ts.connects.Load(); got < 2 {
		t.Errorf("Expected at least 2 connections, got %d", got)
	}
}
