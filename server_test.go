package framed

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects the messages received on each connection.
type recordingHandler struct {
	mu       sync.Mutex
	messages []string
	handled  chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{handled: make(chan struct{}, 10)}
}

func (h *recordingHandler) Handle(conn *Conn) error {
	defer func() { h.handled <- struct{}{} }()

	for {
		var msg string
		ok, err := conn.Receive(&msg)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		h.mu.Lock()
		h.messages = append(h.messages, msg)
		h.mu.Unlock()

		if err := conn.Send(msg); err != nil {
			return err
		}
	}
}

func (h *recordingHandler) getMessages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

func TestListen(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	if server.listener == nil {
		t.Error("listener is nil")
	}
}

func TestListen_OccupiedPort(t *testing.T) {
	first, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("first Listen failed: %v", err)
	}
	defer first.Close()

	_, err = Listen(first.Addr().String())
	if err == nil {
		t.Error("expected error for occupied port")
	}
}

func TestListen_InvalidAddr(t *testing.T) {
	_, err := Listen("not-an-address")
	if err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestServer_Close(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	if err = server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Verify the listener is closed by trying to accept
	if _, err = server.Accept(); err == nil {
		t.Error("expected error after close")
	}
}

func TestServer_Addr(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	if server.Addr() == nil {
		t.Error("Addr returned nil")
	}
}

func TestServer_Serve(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	handler := newRecordingHandler()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	client, err := Dial(server.Addr().String(), DialTimeoutOption(2*time.Second))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := client.Send("hello server"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var echoed string
	ok, err := client.Receive(&echoed)
	if err != nil || !ok {
		t.Fatalf("Receive failed: ok=%v err=%v", ok, err)
	}
	if echoed != "hello server" {
		t.Errorf("echo mismatch: got %q", echoed)
	}

	client.Close()

	select {
	case <-handler.handled:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for handler to finish")
	}

	messages := handler.getMessages()
	if len(messages) != 1 || messages[0] != "hello server" {
		t.Errorf("handler messages = %v, want [hello server]", messages)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestServer_Serve_MultipleConnections(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	handler := newRecordingHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	for i := 0; i < 3; i++ {
		client, err := Dial(server.Addr().String(), DialTimeoutOption(2*time.Second))
		if err != nil {
			t.Fatalf("Dial %d failed: %v", i, err)
		}

		if err := client.Send("ping"); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}

		var echoed string
		if ok, err := client.Receive(&echoed); err != nil || !ok {
			t.Fatalf("Receive %d failed: ok=%v err=%v", i, ok, err)
		}
		client.Close()

		select {
		case <-handler.handled:
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for handler %d", i)
		}
	}

	if got := len(handler.getMessages()); got != 3 {
		t.Errorf("handled %d messages, want 3", got)
	}
}

func TestServer_Serve_ContextCanceled(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, newRecordingHandler())
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to stop")
	}
}

func TestServer_Serve_ConnOptions(t *testing.T) {
	server, err := Listen("127.0.0.1:0",
		ServerConnOptions(CustomCodecOption(MsgpackCodec{})),
	)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	handler := newRecordingHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	// The client must speak the same codec as the accepted connections.
	client, err := Dial(server.Addr().String(),
		CustomCodecOption(MsgpackCodec{}),
		DialTimeoutOption(2*time.Second),
	)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	if err := client.Send("msgpack ping"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var echoed string
	if ok, err := client.Receive(&echoed); err != nil || !ok {
		t.Fatalf("Receive failed: ok=%v err=%v", ok, err)
	}
	if echoed != "msgpack ping" {
		t.Errorf("echo mismatch: got %q", echoed)
	}
}

func TestHandlerFunc(t *testing.T) {
	called := false
	handler := HandlerFunc(func(conn *Conn) error {
		called = true
		return nil
	})

	if err := handler.Handle(nil); err != nil {
		t.Errorf("Handle returned %v", err)
	}
	if !called {
		t.Error("handler function not called")
	}
}
