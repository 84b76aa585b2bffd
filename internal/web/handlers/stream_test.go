package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/kozaktomas/gatewatch/internal/database/mock"
)

func dialStream(t *testing.T, server *httptest.Server) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestStreamHandler_Frames(t *testing.T) {
	store := mock.NewMockExitStore()
	session := newTestSession(t, store, NewExitFeed())
	server := httptest.NewServer(http.HandlerFunc(NewStreamHandler(session, nil).Serve))
	defer server.Close()

	conn, _, err := dialStream(t, server)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	_, frame := testFrame(t)

	// Undecodable frames and text messages get no reply.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
		var msg FrameMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read reply %d: %v", i, err)
		}
		if len(msg.ExitIDs) != 0 {
			t.Errorf("frame %d: unexpected exits %v", i, msg.ExitIDs)
		}
		pred, ok := msg.Predictions[1]
		if !ok {
			t.Fatalf("frame %d: missing prediction for track 1: %+v", i, msg.Predictions)
		}
		if pred.Identity != "Alice" {
			t.Errorf("frame %d: identity = %q, want Alice", i, pred.Identity)
		}
		if diff := cmp.Diff([]float64{20, 20, 60, 60}, pred.BBox); diff != "" {
			t.Errorf("frame %d: bbox mismatch (-want +got):\n%s", i, diff)
		}
	}

	if !session.Status().Streaming {
		t.Error("expected session to be attached")
	}

	// A second stream is rejected while the first is attached.
	_, resp, err := dialStream(t, server)
	if err == nil {
		t.Fatal("expected second stream to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second stream response = %v, want 409", resp)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	// Disconnect finalizes the session asynchronously.
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, _ := store.CountExits(context.Background())
		if n == 1 && !session.Status().Streaming {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("exits = %d, streaming = %v after disconnect", n, session.Status().Streaming)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if session.Status().Tracks != 0 {
		t.Error("expected session reset after disconnect")
	}
}

func TestStreamHandler_ResetsOnConnect(t *testing.T) {
	session := newTestSession(t, mock.NewMockExitStore(), NewExitFeed())
	feedFrames(t, session, 3)
	before := session.Status().ID

	server := httptest.NewServer(http.HandlerFunc(NewStreamHandler(session, nil).Serve))
	defer server.Close()

	conn, _, err := dialStream(t, server)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// The first reply proves the handler has run its connect path.
	_, frame := testFrame(t)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatal(err)
	}
	var msg FrameMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read reply: %v", err)
	}

	status := session.Status()
	if status.ID == before {
		t.Error("expected a new session on connect")
	}
	if status.Processed != 1 {
		t.Errorf("processed = %d, want 1", status.Processed)
	}
}

func TestStreamHandler_OriginRejected(t *testing.T) {
	session := newTestSession(t, mock.NewMockExitStore(), NewExitFeed())
	deny := func(*http.Request) bool { return false }
	server := httptest.NewServer(http.HandlerFunc(NewStreamHandler(session, deny).Serve))
	defer server.Close()

	_, resp, err := dialStream(t, server)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
	if session.Status().Streaming {
		t.Error("session should be released after a failed upgrade")
	}
}

func TestExitFeed_Events(t *testing.T) {
	feed := NewExitFeed()
	server := httptest.NewServer(http.HandlerFunc(feed.Events))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	if name, _ := readEvent(); name != "connected" {
		t.Fatalf("first event = %q, want connected", name)
	}

	store := mock.NewMockExitStore()
	recorder := feed.Wrap(store)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, err := recorder.RecordExits(context.Background(), []string{"Alice"}, at, time.Minute); err != nil {
		t.Fatal(err)
	}
	// A deduplicated batch publishes nothing.
	if _, err := recorder.RecordExits(context.Background(), []string{"Alice"}, at.Add(time.Second), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := recorder.RecordExits(context.Background(), []string{"Bob"}, at.Add(2*time.Second), time.Minute); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"Alice", "Bob"} {
		name, data := readEvent()
		if name != "exit" {
			t.Fatalf("event = %q, want exit", name)
		}
		var ev struct {
			Data ExitNotice `json:"data"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if diff := cmp.Diff([]string{want}, ev.Data.Identities); diff != "" {
			t.Errorf("identities mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestEventBroadcaster_Listeners(t *testing.T) {
	var b EventBroadcaster
	ch := b.AddListener()
	if b.ListenerCount() != 1 {
		t.Fatalf("ListenerCount() = %d, want 1", b.ListenerCount())
	}

	b.SendEvent(Event{Type: "exit"})
	if ev := <-ch; ev.Type != "exit" {
		t.Errorf("event type = %q, want exit", ev.Type)
	}

	b.RemoveListener(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", b.ListenerCount())
	}
}
