package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/natsserver"
	"github.com/loqalabs/loqa-reader/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startServer(t *testing.T) (*natsserver.EmbeddedServer, config.BusConfig) {
	t.Helper()
	cfg := config.BusConfig{Enabled: true, Embedded: true, Port: -1, ConnectTimeout: 2000}
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv, cfg
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestPublishJobStatus(t *testing.T) {
	srv, cfg := startServer(t)
	client, err := Connect(context.Background(), cfg, newLogger(), srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	if !client.Healthy() {
		t.Fatal("expected healthy connection")
	}

	sub, err := client.Conn().SubscribeSync(protocol.SubjectJobStatusPrefix + ".>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	status := protocol.JobStatus{JobID: "job-1", Kind: "chapter-audio", Status: "running", Percent: 40, Timestamp: time.Now().UTC()}
	if err := client.PublishJobStatus(context.Background(), status); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	if msg.Subject != "reader.jobs.status.job-1" {
		t.Fatalf("unexpected subject %s", msg.Subject)
	}
	var got protocol.JobStatus
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "running" || got.Percent != 40 {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestEmbeddedDisabled(t *testing.T) {
	srv, err := natsserver.Start(config.BusConfig{Enabled: true, Embedded: false}, newLogger())
	if err != nil || srv != nil {
		t.Fatalf("expected no server, got %v %v", srv, err)
	}
	if srv.ClientURL() != "" {
		t.Fatal("nil server should report no url")
	}
}
