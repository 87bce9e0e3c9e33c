package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/sync"
)

func startServer(t *testing.T, metrics http.Handler) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Metrics: metrics, Logger: zerolog.Nop()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.ClientCount() == 0 {
		t.Fatal("client never registered")
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: zerolog.Nop()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.Addr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "asccrash_sync_source_failures_total 0")
	})
	server := startServer(t, metrics)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}

	resp, err = http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "asccrash_sync_source_failures_total 0\n" {
		t.Errorf("metrics body = %q", body)
	}
}

func TestBroadcastSyncComplete(t *testing.T) {
	server := startServer(t, nil)
	conn := dial(t, server)
	handler := NewHandler(server, zerolog.Nop())

	device := "iPhone15,2"
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rep := &sync.Report{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Kinds:      model.Kinds,
		Sources: []sync.SourceReport{
			{
				BundleID: "com.example.app",
				Walks: []*sync.WalkResult{{
					Kind: model.KindCrash,
					New: []*model.Submission{{
						ID: 7, Kind: model.KindCrash, SourceBundleID: "com.example.app",
						Metadata: model.Metadata{DeviceModel: &device},
					}},
				}},
			},
			{BundleID: "com.example.broken", Err: errors.New("app not found")},
		},
		Counts: map[model.Kind]sync.Totals{
			model.KindCrash:    {Total: 4, Unfixed: 2},
			model.KindFeedback: {Total: 1, Unfixed: 1},
		},
	}
	handler.OnSyncComplete(rep, errors.New("com.example.broken: app not found"))

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeNewSubmission {
		t.Fatalf("first message = %s, want %s", msg.Type, MessageTypeNewSubmission)
	}
	var sub NewSubmissionData
	if err := json.Unmarshal(msg.Data, &sub); err != nil {
		t.Fatalf("Failed to decode submission: %v", err)
	}
	if sub.ID != 7 || sub.App != "com.example.app" || sub.DeviceModel == nil || *sub.DeviceModel != device {
		t.Errorf("unexpected submission data: %+v", sub)
	}

	msg = readMessage(t, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("second message = %s, want %s", msg.Type, MessageTypeSyncComplete)
	}
	var done SyncCompleteData
	if err := json.Unmarshal(msg.Data, &done); err != nil {
		t.Fatalf("Failed to decode sync data: %v", err)
	}
	if done.OK {
		t.Error("OK = true, want false")
	}
	if done.New["crash"] != 1 || done.New["feedback"] != 0 {
		t.Errorf("New = %v", done.New)
	}
	if len(done.Errors) != 1 {
		t.Errorf("Errors = %v, want one entry", done.Errors)
	}
	if done.Duration != 2*time.Second {
		t.Errorf("Duration = %v", done.Duration)
	}

	msg = readMessage(t, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("third message = %s, want %s", msg.Type, MessageTypeStats)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats["crash"] != (KindStats{Total: 4, Unfixed: 2}) {
		t.Errorf("crash stats = %+v", stats["crash"])
	}
}

func TestNewClientReceivesLastStats(t *testing.T) {
	server := startServer(t, nil)
	handler := NewHandler(server, zerolog.Nop())

	rep := &sync.Report{
		RunID:  "run-2",
		Counts: map[model.Kind]sync.Totals{model.KindCrash: {Total: 3, Unfixed: 3}},
	}
	handler.OnSyncComplete(rep, nil)

	// The queued broadcasts may still reach the client after it connects, so
	// look for the stats message among the first few.
	conn := dial(t, server)
	for i := 0; i < 3; i++ {
		if msg := readMessage(t, conn); msg.Type == MessageTypeStats {
			return
		}
	}
	t.Fatal("never received a stats message")
}

func TestOnSyncComplete_NilReport(t *testing.T) {
	server := startServer(t, nil)
	handler := NewHandler(server, zerolog.Nop())
	handler.OnSyncComplete(nil, errors.New("no matching app"))
}
