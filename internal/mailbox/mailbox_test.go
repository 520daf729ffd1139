package mailbox

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	rx, err := Create(dir, "/svc", 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer rx.Destroy()

	tx, err := Open(dir, "/svc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tx.Close()

	if got := tx.MaxMsgSize(); got != 1024 {
		t.Errorf("opened MaxMsgSize = %d, want 1024", got)
	}

	want := []byte("hello mailbox")
	if err := tx.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, rx.MaxMsgSize())
	n, err := rx.Receive(buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("received %q, want %q", buf[:n], want)
	}
}

func TestMessageBoundaries(t *testing.T) {
	dir := t.TempDir()

	rx, err := Create(dir, "/svc", 256)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer rx.Destroy()

	tx, err := Open(dir, "/svc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tx.Close()

	// Two sends must arrive as two messages, not a byte stream.
	for _, m := range []string{"first", "second"} {
		if err := tx.Send([]byte(m)); err != nil {
			t.Fatalf("Send(%q): %v", m, err)
		}
	}
	buf := make([]byte, rx.MaxMsgSize())
	for _, want := range []string{"first", "second"} {
		n, err := rx.Receive(buf)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if string(buf[:n]) != want {
			t.Errorf("received %q, want %q", buf[:n], want)
		}
	}
}

func TestBadName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"", "/", "nosluash", "/a/b", "a"} {
		t.Run(name, func(t *testing.T) {
			if _, err := Create(dir, name, 0); !errors.Is(err, ErrBadName) {
				t.Errorf("Create(%q) err = %v, want %v", name, err, ErrBadName)
			}
			if _, err := Open(dir, name); !errors.Is(err, ErrBadName) {
				t.Errorf("Open(%q) err = %v, want %v", name, err, ErrBadName)
			}
		})
	}
}

func TestDefaultMaxMsgSize(t *testing.T) {
	dir := t.TempDir()
	rx, err := Create(dir, "/svc", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer rx.Destroy()
	if got := rx.MaxMsgSize(); got != DefaultMaxMsgSize {
		t.Errorf("MaxMsgSize = %d, want %d", got, DefaultMaxMsgSize)
	}
}

func TestSendTooLarge(t *testing.T) {
	dir := t.TempDir()
	rx, err := Create(dir, "/svc", 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer rx.Destroy()

	tx, err := Open(dir, "/svc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tx.Close()

	if err := tx.Send(make([]byte, 17)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Send err = %v, want %v", err, ErrTooLarge)
	}
}

func TestDirectionGuards(t *testing.T) {
	dir := t.TempDir()
	rx, err := Create(dir, "/svc", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer rx.Destroy()

	tx, err := Open(dir, "/svc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tx.Close()

	if err := rx.Send([]byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Send on created mailbox err = %v, want %v", err, ErrReadOnly)
	}
	if _, err := tx.Receive(make([]byte, 8)); !errors.Is(err, ErrWriteOnly) {
		t.Errorf("Receive on opened mailbox err = %v, want %v", err, ErrWriteOnly)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(t.TempDir(), "/nobody"); err == nil {
		t.Fatal("expected error opening a mailbox that does not exist")
	}
}

func TestDestroyRemovesMailbox(t *testing.T) {
	dir := t.TempDir()
	rx, err := Create(dir, "/svc", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := rx.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := Open(dir, "/svc"); err == nil {
		t.Fatal("expected error opening a destroyed mailbox")
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	dir := t.TempDir()
	rx, err := Create(dir, "/svc", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := rx.Receive(make([]byte, 8))
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := rx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("expected error from unblocked Receive")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}
