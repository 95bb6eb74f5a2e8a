package relayerr

import (
	"errors"
	"testing"
)

func TestIsClientVisibleTypedErrors(t *testing.T) {
	errs := []error{
		&UnknownNameplateError{Nameplate: "42"},
		&UnknownMailboxError{Mailbox: "abc"},
		&CrowdedNameplateError{Nameplate: "42"},
		&CrowdedMailboxError{Mailbox: "abc"},
	}
	for _, e := range errs {
		if !IsClientVisible(e) {
			t.Errorf("IsClientVisible(%v) = false, want true", e)
		}
	}
}

func TestIsClientVisibleSentinels(t *testing.T) {
	for _, e := range sentinels {
		if !IsClientVisible(e) {
			t.Errorf("IsClientVisible(%v) = false, want true", e)
		}
	}
}

func TestIsClientVisibleRejectsOpaqueErrors(t *testing.T) {
	if IsClientVisible(errors.New("boom")) {
		t.Error("IsClientVisible(opaque error) = true, want false")
	}
}
