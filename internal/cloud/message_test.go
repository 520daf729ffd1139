package cloud

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewBytesMessage(t *testing.T) {
	body := []byte("payload")
	msg, err := NewBytesMessage(body)
	if err != nil {
		t.Fatalf("NewBytesMessage: %v", err)
	}
	if msg.Kind() != ContentBytes {
		t.Errorf("kind = %v, want ContentBytes", msg.Kind())
	}
	if !bytes.Equal(msg.Body(), body) {
		t.Errorf("body = %q, want %q", msg.Body(), body)
	}

	// The constructor copies: mutating the source must not reach the message.
	body[0] = 'X'
	if msg.Body()[0] == 'X' {
		t.Error("message body aliases the caller's slice")
	}
}

func TestNewBytesMessageErrors(t *testing.T) {
	if _, err := NewBytesMessage(nil); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("empty body err = %v, want %v", err, ErrEmptyBody)
	}
	if _, err := NewBytesMessage(make([]byte, MaxBodySize+1)); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("oversized body err = %v, want %v", err, ErrBodyTooLarge)
	}
	// Exactly MaxBodySize is fine.
	if _, err := NewBytesMessage(make([]byte, MaxBodySize)); err != nil {
		t.Errorf("body at MaxBodySize: %v", err)
	}
}

func TestNewTextMessage(t *testing.T) {
	msg, err := NewTextMessage("hello")
	if err != nil {
		t.Fatalf("NewTextMessage: %v", err)
	}
	if msg.Kind() != ContentText {
		t.Errorf("kind = %v, want ContentText", msg.Kind())
	}
	if string(msg.Body()) != "hello" {
		t.Errorf("body = %q, want %q", msg.Body(), "hello")
	}

	if _, err := NewTextMessage(""); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("empty text err = %v, want %v", err, ErrEmptyBody)
	}
}

func TestNewEmptyMessage(t *testing.T) {
	msg := NewEmptyMessage()
	if msg.Kind() != ContentNone {
		t.Errorf("kind = %v, want ContentNone", msg.Kind())
	}
	if msg.Body() != nil {
		t.Errorf("body = %q, want nil", msg.Body())
	}
}

func TestSetIdentity(t *testing.T) {
	msg := NewEmptyMessage()
	if err := msg.SetMessageID("m1"); err != nil {
		t.Fatalf("SetMessageID: %v", err)
	}
	if err := msg.SetCorrelationID("c1"); err != nil {
		t.Fatalf("SetCorrelationID: %v", err)
	}
	if msg.MessageID() != "m1" || msg.CorrelationID() != "c1" {
		t.Errorf("identity = %q/%q, want m1/c1", msg.MessageID(), msg.CorrelationID())
	}

	if err := msg.SetMessageID("bad\nid"); !errors.Is(err, ErrBadProperty) {
		t.Errorf("newline in id err = %v, want %v", err, ErrBadProperty)
	}
	if err := msg.SetCorrelationID("bad\x00id"); !errors.Is(err, ErrBadProperty) {
		t.Errorf("NUL in id err = %v, want %v", err, ErrBadProperty)
	}
}

func TestSetProperty(t *testing.T) {
	msg := NewEmptyMessage()
	if err := msg.SetProperty("room", "lab"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if got, ok := msg.Property("room"); !ok || got != "lab" {
		t.Errorf("room = %q, %v, want lab, true", got, ok)
	}

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"empty key", "", "v"},
		{"colon in key", "a:b", "v"},
		{"newline in key", "a\nb", "v"},
		{"newline in value", "k", "a\nb"},
		{"nul in value", "k", "a\x00b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := msg.SetProperty(tt.key, tt.val); !errors.Is(err, ErrBadProperty) {
				t.Errorf("SetProperty(%q, %q) err = %v, want %v", tt.key, tt.val, err, ErrBadProperty)
			}
		})
	}

	// A value containing ':' is legal; only keys are restricted.
	if err := msg.SetProperty("url", "http://x"); err != nil {
		t.Errorf("colon in value: %v", err)
	}
}

func TestNewInbound(t *testing.T) {
	if msg := newInbound(nil); msg.Kind() != ContentNone {
		t.Errorf("nil payload kind = %v, want ContentNone", msg.Kind())
	}

	payload := []byte("data")
	msg := newInbound(payload)
	if msg.Kind() != ContentBytes {
		t.Errorf("kind = %v, want ContentBytes", msg.Kind())
	}
	payload[0] = 'X'
	if msg.Body()[0] == 'X' {
		t.Error("inbound body aliases the transport's buffer")
	}
}

func TestDispositionString(t *testing.T) {
	if got := Accepted.String(); got != "accepted" {
		t.Errorf("Accepted = %q, want %q", got, "accepted")
	}
	if got := Rejected.String(); got != "rejected" {
		t.Errorf("Rejected = %q, want %q", got, "rejected")
	}
}
