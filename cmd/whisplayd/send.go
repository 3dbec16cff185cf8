package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/whisplay/whisplayd/internal/control"
)

const sendTimeout = 5 * time.Second

// execSend writes msg to the control server and copies its replies to out.
// Button events arriving meanwhile are skipped.
func execSend(ctx context.Context, addr string, msg []byte, out io.Writer) error {
	msg = bytes.TrimSpace(msg)
	want := 1
	if m, err := control.Decode(msg); err == nil && m.HasResponse() {
		want = 2
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(sendTimeout)); err != nil {
		return err
	}

	if _, err := conn.Write(append(msg, '\n')); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	r := bufio.NewReader(conn)
	for want > 0 {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
		if bytes.HasPrefix(line, []byte(`{"event":`)) {
			continue
		}
		if _, err := out.Write(line); err != nil {
			return err
		}
		if bytes.HasPrefix(line, []byte("ERROR")) {
			return nil
		}
		want--
	}
	return nil
}
