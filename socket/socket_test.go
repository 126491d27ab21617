package socket

import (
	"errors"
	"testing"
	"time"
)

var loopback = [4]byte{127, 0, 0, 1}

func TestEphemeralPortEcho(t *testing.T) {
	listener, port, err := Listen([4]byte{0, 0, 0, 0}, 0, 8)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	if port <= 0 || port > 65535 {
		t.Fatalf("bound port %d out of range", port)
	}

	client, err := Connect(loopback, port)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	n, err := client.Send([]byte("ping"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 4 {
		t.Fatalf("Send returned %d, want 4", n)
	}

	var server *Handle
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		server, err = listener.Accept()
		if err == nil {
			break
		}
		if errors.Is(err, ErrAgain) {
			time.Sleep(time.Millisecond)
			continue
		}
		t.Fatalf("Accept: %v", err)
	}
	if server == nil {
		t.Fatalf("Accept never produced a connection within 1s")
	}
	defer server.Close()

	buf := make([]byte, 16)
	var got int
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, err = server.Recv(buf)
		if err == nil {
			break
		}
		if errors.Is(err, ErrAgain) {
			time.Sleep(time.Millisecond)
			continue
		}
		t.Fatalf("Recv: %v", err)
	}
	if got != 4 || string(buf[:got]) != "ping" {
		t.Fatalf("Recv got %q, want %q", buf[:got], "ping")
	}
}

func TestRecvAgainThenShutdownReturnsZero(t *testing.T) {
	listener, port, err := Listen([4]byte{0, 0, 0, 0}, 0, 8)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	client, err := Connect(loopback, port)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	var server *Handle
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		server, err = listener.Accept()
		if err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if server == nil {
		t.Fatalf("Accept never produced a connection")
	}
	defer server.Close()

	buf := make([]byte, 16)
	if _, err := server.Recv(buf); !errors.Is(err, ErrAgain) {
		t.Fatalf("Recv with no pending data returned %v, want ErrAgain", err)
	}

	if err := client.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	var n int
	for time.Now().Before(deadline) {
		n, err = server.Recv(buf)
		if err == nil {
			break
		}
		if errors.Is(err, ErrAgain) {
			time.Sleep(time.Millisecond)
			continue
		}
		t.Fatalf("Recv: %v", err)
	}
	if n != 0 {
		t.Fatalf("Recv after peer shutdown returned %d, want 0", n)
	}
}

func TestSelfPipeClearPipe(t *testing.T) {
	r, w, err := NewSelfPipe()
	if err != nil {
		t.Fatalf("NewSelfPipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if _, err := w.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := r.ClearPipe(); !errors.Is(err, ErrAgain) {
		t.Fatalf("ClearPipe returned %v, want ErrAgain after drain", err)
	}

	buf := make([]byte, 1)
	if _, err := r.Recv(buf); !errors.Is(err, ErrAgain) {
		t.Fatalf("Recv after ClearPipe returned %v, want ErrAgain", err)
	}
}

func TestHandleEqual(t *testing.T) {
	r, w, err := NewSelfPipe()
	if err != nil {
		t.Fatalf("NewSelfPipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if !r.Equal(r) {
		t.Fatalf("handle not equal to itself")
	}
	if r.Equal(w) {
		t.Fatalf("distinct handles compared equal")
	}
}
