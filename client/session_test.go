package client

import (
	"context"
	"errors"
	"testing"

	"github.com/rotunda-labs/wormhole-relay/wire"
)

func TestFormatCodeIsDeterministic(t *testing.T) {
	a := formatCode("42", "abcdefghijklm")
	b := formatCode("42", "abcdefghijklm")
	if a != b {
		t.Fatalf("formatCode not deterministic: %q vs %q", a, b)
	}
	if a[:3] != "42-" {
		t.Fatalf("got %q, want it to start with the nameplate", a)
	}
}

func TestFormatCodeDiffersByMailboxBytes(t *testing.T) {
	a := formatCode("1", "aaaaaaaaaaaaa")
	b := formatCode("1", "zzzzzzzzzzzzz")
	if a == b {
		t.Fatalf("expected different word pairs for different mailbox ids, got %q for both", a)
	}
}

func TestNameplateFromCodeParsesLeadingInt(t *testing.T) {
	n, err := nameplateFromCode("42-granite-anchor")
	if err != nil {
		t.Fatalf("nameplateFromCode: %v", err)
	}
	if n != "42" {
		t.Fatalf("got %q, want %q", n, "42")
	}
}

func TestNameplateFromCodeRejectsMalformed(t *testing.T) {
	cases := []string{"", "granite-anchor", "-anchor"}
	for _, c := range cases {
		if _, err := nameplateFromCode(c); err == nil {
			t.Fatalf("nameplateFromCode(%q) should have failed", c)
		}
	}
}

func TestDeriveSharedKeyIsDeterministicAndFullLength(t *testing.T) {
	a := deriveSharedKey("42-granite-anchor")
	b := deriveSharedKey("42-granite-anchor")
	if len(a) != 32 {
		t.Fatalf("got key length %d, want 32", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("deriveSharedKey not deterministic at byte %d", i)
		}
	}

	c := deriveSharedKey("42-granite-raven")
	if string(a) == string(c) {
		t.Fatal("different codes produced the same shared key")
	}
}

func TestMoodForErrTimeoutIsLonely(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	if got := moodForErr(ctx.Err()); got != wire.MoodLonely {
		t.Fatalf("got %q, want %q for a deadline-exceeded error", got, wire.MoodLonely)
	}
	if got := moodForErr(context.Canceled); got != wire.MoodLonely {
		t.Fatalf("got %q, want %q for a canceled context", got, wire.MoodLonely)
	}
}

func TestMoodForErrOtherIsErrory(t *testing.T) {
	if got := moodForErr(errors.New("boom")); got != wire.MoodErrory {
		t.Fatalf("got %q, want %q for an unrelated error", got, wire.MoodErrory)
	}
}
