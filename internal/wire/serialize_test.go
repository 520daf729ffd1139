package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/philsphicas/iotrelay/internal/cloud"
	"github.com/philsphicas/iotrelay/internal/props"
)

func TestSerialize(t *testing.T) {
	msg, err := cloud.NewTextMessage(`{"t":1}`)
	if err != nil {
		t.Fatalf("NewTextMessage: %v", err)
	}
	if err := msg.SetMessageID("M1"); err != nil {
		t.Fatal(err)
	}
	if err := msg.SetCorrelationID("C1"); err != nil {
		t.Fatal(err)
	}
	if err := msg.SetProperty("region", "us"); err != nil {
		t.Fatal(err)
	}

	got, err := Serialize(msg, 8192)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := []byte("messageId:M1\ncorrelationId:C1\nregion:us\n\n{\"t\":1}\x00")
	if !bytes.Equal(got, want) {
		t.Errorf("Serialize = %q, want %q", got, want)
	}
}

func TestSerializeAbsentIdentity(t *testing.T) {
	// The reserved lines are always present, with empty values when the
	// message carries no identity.
	msg, err := cloud.NewTextMessage("x")
	if err != nil {
		t.Fatal(err)
	}

	got, err := Serialize(msg, 8192)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := []byte("messageId:\ncorrelationId:\n\nx\x00")
	if !bytes.Equal(got, want) {
		t.Errorf("Serialize = %q, want %q", got, want)
	}
}

func TestSerializeEmptyBody(t *testing.T) {
	msg := cloud.NewEmptyMessage()

	got, err := Serialize(msg, 8192)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := []byte("messageId:\ncorrelationId:\n\n{}\x00")
	if !bytes.Equal(got, want) {
		t.Errorf("Serialize = %q, want %q", got, want)
	}
}

func TestSerializeBinaryBody(t *testing.T) {
	body := []byte{0x00, 0xff, 0x10, 0x00}
	msg, err := cloud.NewBytesMessage(body)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Serialize(msg, 8192)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := append([]byte("messageId:\ncorrelationId:\n\n"), body...)
	want = append(want, 0)
	if !bytes.Equal(got, want) {
		t.Errorf("Serialize = %q, want %q", got, want)
	}
}

func TestSerializeStripsService(t *testing.T) {
	msg, err := cloud.NewTextMessage("x")
	if err != nil {
		t.Fatal(err)
	}
	if err := msg.SetProperty("service", "telemetry"); err != nil {
		t.Fatal(err)
	}

	got, err := Serialize(msg, 8192)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if bytes.Contains(got, []byte("service")) {
		t.Errorf("service routing property leaked into output: %q", got)
	}
}

func TestSerializeSizeBudget(t *testing.T) {
	msg, err := cloud.NewTextMessage("x")
	if err != nil {
		t.Fatal(err)
	}
	exact, err := Serialize(msg, 8192)
	if err != nil {
		t.Fatal(err)
	}

	// The serialized form fits a budget of its own length and nothing less.
	if got, err := Serialize(msg, len(exact)); err != nil {
		t.Errorf("Serialize at exact budget: %v", err)
	} else if !bytes.Equal(got, exact) {
		t.Errorf("Serialize at exact budget = %q, want %q", got, exact)
	}
	if _, err := Serialize(msg, len(exact)-1); !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("Serialize one byte under budget: err = %v, want %v", err, ErrInsufficientSpace)
	}
}

func TestSerializeRejectsOversizedProperty(t *testing.T) {
	msg := cloud.NewEmptyMessage()
	if err := msg.SetProperty("k", string(bytes.Repeat([]byte("v"), 100))); err != nil {
		t.Fatal(err)
	}

	if _, err := Serialize(msg, 64); !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("err = %v, want %v", err, ErrInsufficientSpace)
	}
}

func TestDecodeApplySerializeRoundTrip(t *testing.T) {
	// A property block that crosses the relay survives decode, apply, and
	// re-serialization with every pair intact and the reserved lines first.
	header := "messageId:abc123\ncorrelationId:xyz\nfoo:bar\n\n"

	var l props.List
	if n := l.Decode(header); n != 3 {
		t.Fatalf("Decode = %d properties, want 3", n)
	}
	msg, err := cloud.NewBytesMessage([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if err := props.Apply(msg, &l); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := msg.MessageID(); got != "abc123" {
		t.Fatalf("messageId = %q, want abc123", got)
	}

	got, err := Serialize(msg, 8192)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := []byte("messageId:abc123\ncorrelationId:xyz\nfoo:bar\n\nhello\x00")
	if !bytes.Equal(got, want) {
		t.Errorf("round trip = %q, want %q", got, want)
	}
}

func TestSerializeZeroBudget(t *testing.T) {
	if _, err := Serialize(cloud.NewEmptyMessage(), 0); !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("err = %v, want %v", err, ErrInsufficientSpace)
	}
}
