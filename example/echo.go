package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framedconn/framed"
)

// chatMessage is the value exchanged between client and server. Any type
// the codec can (de)serialize works; only the field shapes need to match
// on both ends.
type chatMessage struct {
	ID   uint32 `cbor:"id"`
	Text string `cbor:"text"`
}

// echo reads messages off a connection and sends each one back until the
// peer closes its end.
func echo(conn *framed.Conn) error {
	for {
		var msg chatMessage
		ok, err := conn.Receive(&msg)
		if err != nil {
			return err
		}
		if !ok {
			return nil // peer is done
		}

		slog.Info("echoing message", "id", msg.ID, "text", msg.Text)
		if err := conn.Send(msg); err != nil {
			return err
		}
	}
}

func runClient(addr string) {
	conn, err := framed.Dial(addr, framed.DialTimeoutOption(2*time.Second))
	if err != nil {
		slog.Error("client dial failed", "error", err)
		return
	}
	defer conn.Close()

	out := chatMessage{ID: 1, Text: "Hello, world!"}
	if err := conn.Send(out); err != nil {
		slog.Error("client send failed", "error", err)
		return
	}

	var in chatMessage
	if _, err := conn.Receive(&in); err != nil {
		slog.Error("client receive failed", "error", err)
		return
	}
	slog.Info("client got echo", "id", in.ID, "text", in.Text)
}

func main() {
	server, err := framed.Listen("127.0.0.1:12345",
		framed.ServerShutdownTimeoutOption(time.Second),
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	go runClient(server.Addr().String())

	slog.Info("server start", "addr", server.Addr())
	if err := server.Serve(ctx, framed.HandlerFunc(echo)); err != nil {
		slog.Error("server error", "error", err)
	}
}
