package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/peerrelay/internal/server"
	"github.com/Tyrowin/peerrelay/internal/testhelpers"
)

// syncBuffer is a bytes.Buffer safe for one writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestChatURL(t *testing.T) {
	tests := []struct {
		base, self, peer string
		want             string
		wantErr          bool
	}{
		{base: "ws://localhost:8080", self: "A", peer: "B", want: "ws://localhost:8080/ws/A/B"},
		{base: "http://localhost:8080/", self: "A", peer: "B", want: "ws://localhost:8080/ws/A/B"},
		{base: "https://relay.example/prefix", self: "A", peer: "B", want: "wss://relay.example/prefix/ws/A/B"},
		{base: "ws://localhost:8080", self: "a b", peer: "c/d", want: "ws://localhost:8080/ws/a%20b/c%2Fd"},
		{base: "ftp://localhost", self: "A", peer: "B", wantErr: true},
		{base: "ws://", self: "A", peer: "B", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.base+"/"+tt.self, func(t *testing.T) {
			got, err := chatURL(tt.base, tt.self, tt.peer)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("chatURL() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("chatURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("chatURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunChatSelfPairing(t *testing.T) {
	srv, err := server.New(server.DefaultConfig())
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	in, stdin := io.Pipe()
	var out syncBuffer
	errc := make(chan error, 1)
	go func() {
		errc <- runChat(context.Background(), chatOptions{URL: ts.URL, Self: "A", Peer: "A"}, in, &out)
	}()

	testhelpers.WaitFor(t, "chat session to register", func() bool {
		_, ok := srv.Registry().Lookup("A")
		return ok
	})

	if _, err := io.WriteString(stdin, "hello\n"); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	testhelpers.WaitFor(t, "echoed line", func() bool {
		return strings.Contains(out.String(), "A: hello")
	})

	_ = stdin.Close()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("runChat() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runChat did not return after stdin closed")
	}
}

func TestRunChatDialFailure(t *testing.T) {
	srv, err := server.New(server.DefaultConfig())
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	err = runChat(context.Background(), chatOptions{URL: ts.URL, Self: "A", Peer: "B", Origin: "http://evil.example"},
		strings.NewReader(""), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("runChat() error = %v, want a 403 dial error", err)
	}
}
