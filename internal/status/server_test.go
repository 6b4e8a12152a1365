package status

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"blastbot/internal/channel"
	"blastbot/pkg/logx"
)

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	conn := channel.NewConnectivity(logx.Nop())
	conn.OnReady()

	srv := NewServer(logx.Nop(), conn)
	if err := srv.Start(Config{Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+srv.Addr()+"/status", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Channel string `json:"channel"`
		Uptime  string `json:"uptime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status field = %q, want ok", body.Status)
	}
	if body.Channel != "ready" {
		t.Fatalf("channel field = %q, want ready", body.Channel)
	}
	if body.Uptime == "" {
		t.Fatal("uptime field is empty")
	}
}

func TestStatusServerStopIsIdempotent(t *testing.T) {
	t.Parallel()
	srv := NewServer(logx.Nop(), channel.NewConnectivity(logx.Nop()))
	if err := srv.Start(Config{Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv.Stop(context.Background())
	srv.Stop(context.Background()) // second stop must not panic
	if srv.Addr() != "" {
		t.Fatalf("Addr after Stop = %q, want empty", srv.Addr())
	}
}
