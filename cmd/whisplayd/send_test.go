package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/whisplay/whisplayd/internal/board"
	"github.com/whisplay/whisplayd/internal/control"
	"github.com/whisplay/whisplayd/internal/logger"
	"github.com/whisplay/whisplayd/internal/server"
	"github.com/whisplay/whisplayd/internal/state"
)

func TestSend(t *testing.T) {
	store := state.New(nil)
	h := control.NewHandler(store, board.NewSim(240, 280), logger.Discard())
	srv := server.New("127.0.0.1:0", h, logger.Discard())
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	}()

	tests := []struct {
		msg  string
		want string
	}{
		{`{"status":"speaking"}`, "OK\n"},
		{`{"text":"hi","response":{"ok":true}}`, "OK\n{\"response\":{\"ok\":true}}\n"},
		{`oops`, "ERROR: invalid JSON\n"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if err := execSend(context.Background(), srv.Addr().String(), []byte(tt.msg), &out); err != nil {
			t.Fatalf("send %s: %v", tt.msg, err)
		}
		if out.String() != tt.want {
			t.Errorf("send %s printed %q, want %q", tt.msg, out.String(), tt.want)
		}
	}
	if got := store.Snapshot().Status; got != "speaking" {
		t.Errorf("status = %q", got)
	}
}

func TestSendDialError(t *testing.T) {
	var out bytes.Buffer
	if err := execSend(context.Background(), "127.0.0.1:1", []byte(`{}`), &out); err == nil {
		t.Error("send to a closed port succeeded")
	}
}
