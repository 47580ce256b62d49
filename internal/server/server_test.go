package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
}

func TestNewRejectsMissingConfig(t *testing.T) {
	if _, err := New(Config{Handler: okHandler()}); err == nil {
		t.Fatal("expected error without addr")
	}
	if _, err := New(Config{Addr: "127.0.0.1:0"}); err == nil {
		t.Fatal("expected error without handler")
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv, err := New(Config{Addr: "127.0.0.1:0", Handler: okHandler()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "chronicle.sock")
	srv, err := New(Config{Addr: "127.0.0.1:0", SocketPath: sock, Handler: okHandler()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	go srv.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "unix", sock)
		},
	}}
	resp, err := client.Get("http://unix/")
	if err != nil {
		t.Fatalf("get over socket: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStaleSocketReplaced(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "chronicle.sock")

	first, err := New(Config{Addr: "127.0.0.1:0", SocketPath: sock, Handler: okHandler()})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// Simulate a crash: close the TCP side but leave the socket file.
	first.tcpLn.Close()
	first.unixLn.Close()

	second, err := New(Config{Addr: "127.0.0.1:0", SocketPath: sock, Handler: okHandler()})
	if err != nil {
		t.Fatalf("stale socket not replaced: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second.Shutdown(ctx)
}
