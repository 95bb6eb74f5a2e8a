package relay

import (
	"testing"

	"github.com/rotunda-labs/wormhole-relay/relayerr"
	"github.com/rotunda-labs/wormhole-relay/wire"
)

func noopListener(wire.MailboxMessage) {}

func TestAllocateNameplate(t *testing.T) {
	app := NewApplication("app1")

	id, err := app.AllocateNameplate("side1", noopListener)
	if err != nil {
		t.Fatalf("AllocateNameplate: %v", err)
	}
	if id != nameplateMin {
		t.Fatalf("got nameplate %d, want %d (smallest free id)", id, nameplateMin)
	}

	ids := app.GetNameplateIDs()
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("GetNameplateIDs = %v, want [%d]", ids, id)
	}
}

func TestAllocateNameplateExhausted(t *testing.T) {
	app := NewApplication("app1")

	for i := nameplateMin; i <= nameplateMax; i++ {
		side := string(rune('a' + i%26))
		if _, err := app.AllocateNameplate(side, noopListener); err != nil {
			t.Fatalf("AllocateNameplate(%d): %v", i, err)
		}
	}

	if _, err := app.AllocateNameplate("overflow", noopListener); err != relayerr.ErrNameplatesExhausted {
		t.Fatalf("got %v, want ErrNameplatesExhausted", err)
	}
}

func TestClaimNameplateCreatesMailbox(t *testing.T) {
	app := NewApplication("app1")

	mbox, err := app.ClaimNameplate(1, "side1", noopListener)
	if err != nil {
		t.Fatalf("ClaimNameplate: %v", err)
	}
	if mbox == "" {
		t.Fatal("expected a non-empty mailbox id")
	}

	mbox2, err := app.ClaimNameplate(1, "side2", noopListener)
	if err != nil {
		t.Fatalf("second ClaimNameplate: %v", err)
	}
	if mbox2 != mbox {
		t.Fatalf("second side got mailbox %q, want %q", mbox2, mbox)
	}
}

func TestClaimNameplateDuplicateSideIsNoOp(t *testing.T) {
	app := NewApplication("app1")

	mbox, _ := app.ClaimNameplate(1, "side1", noopListener)
	mbox2, err := app.ClaimNameplate(1, "side1", noopListener)
	if err != nil {
		t.Fatalf("duplicate claim by same side: %v", err)
	}
	if mbox2 != mbox {
		t.Fatalf("got %q, want %q", mbox2, mbox)
	}
}

func TestClaimNameplateCrowded(t *testing.T) {
	app := NewApplication("app1")

	app.ClaimNameplate(1, "side1", noopListener)
	app.ClaimNameplate(1, "side2", noopListener)

	_, err := app.ClaimNameplate(1, "side3", noopListener)
	crowded, ok := err.(*relayerr.CrowdedNameplateError)
	if !ok {
		t.Fatalf("got %T, want *relayerr.CrowdedNameplateError", err)
	}
	if crowded.Nameplate != "1" {
		t.Fatalf("got nameplate %q, want %q", crowded.Nameplate, "1")
	}

	// The third side is still recorded, even though the call errored.
	np := app.nameplates[1]
	if len(np.Sides) != 3 {
		t.Fatalf("got %d sides, want 3 (crowding still mutates state)", len(np.Sides))
	}
}

func TestReleaseEmptiesNameplate(t *testing.T) {
	app := NewApplication("app1")
	app.ClaimNameplate(1, "side1", noopListener)

	app.ReleaseNameplate(1, "side1")

	if _, ok := app.nameplates[1]; ok {
		t.Fatal("nameplate should have been removed once empty")
	}
}

func TestReleaseUnknownNameplateIsSilentNoOp(t *testing.T) {
	app := NewApplication("app1")
	app.ReleaseNameplate(999, "side1") // must not panic
}

func TestRemoveSideFromNameplates(t *testing.T) {
	app := NewApplication("app1")
	app.ClaimNameplate(1, "side1", noopListener)
	app.ClaimNameplate(2, "side1", noopListener)
	app.ClaimNameplate(3, "side2", noopListener)

	app.RemoveSideFromNameplates("side1")

	if _, ok := app.nameplates[1]; ok {
		t.Fatal("nameplate 1 should have emptied out")
	}
	if _, ok := app.nameplates[2]; ok {
		t.Fatal("nameplate 2 should have emptied out")
	}
	if _, ok := app.nameplates[3]; !ok {
		t.Fatal("nameplate 3 should be untouched")
	}
}

func TestOpenMailboxCrowded(t *testing.T) {
	app := NewApplication("app1")

	app.OpenMailbox("mbox1", "side1", noopListener)
	app.OpenMailbox("mbox1", "side2", noopListener)

	err := app.OpenMailbox("mbox1", "side3", noopListener)
	crowded, ok := err.(*relayerr.CrowdedMailboxError)
	if !ok {
		t.Fatalf("got %T, want *relayerr.CrowdedMailboxError", err)
	}
	if crowded.Mailbox != "mbox1" {
		t.Fatalf("got mailbox %q, want %q", crowded.Mailbox, "mbox1")
	}

	mb := app.mailboxes["mbox1"]
	if len(mb.subscribers) != 3 {
		t.Fatalf("got %d subscribers, want 3 (crowding still mutates state)", len(mb.subscribers))
	}
}

func TestCloseUnknownMailbox(t *testing.T) {
	app := NewApplication("app1")
	_, ok := app.CloseMailbox("nope", "side1").(*relayerr.UnknownMailboxError)
	if !ok {
		t.Fatal("expected *relayerr.UnknownMailboxError")
	}
}

func TestCloseMailboxFreesItWhenEmpty(t *testing.T) {
	app := NewApplication("app1")
	app.OpenMailbox("mbox1", "side1", noopListener)

	if err := app.CloseMailbox("mbox1", "side1"); err != nil {
		t.Fatalf("CloseMailbox: %v", err)
	}
	if _, ok := app.mailboxes["mbox1"]; ok {
		t.Fatal("mailbox should have been removed once empty")
	}
}

func TestAddMessageToUnknownMailbox(t *testing.T) {
	app := NewApplication("app1")
	err := app.AddMessageToMailbox("nope", MailboxMessage{})
	if _, ok := err.(*relayerr.UnknownMailboxError); !ok {
		t.Fatal("expected *relayerr.UnknownMailboxError")
	}
}

func TestAddMessageBroadcastsToAllSubscribers(t *testing.T) {
	app := NewApplication("app1")

	var gotA, gotB []wire.MailboxMessage
	app.OpenMailbox("mbox1", "sideA", func(m wire.MailboxMessage) { gotA = append(gotA, m) })
	app.OpenMailbox("mbox1", "sideB", func(m wire.MailboxMessage) { gotB = append(gotB, m) })

	if err := app.AddMessageToMailbox("mbox1", MailboxMessage{ID: "m1", Side: "sideA", Phase: wire.PhasePake}); err != nil {
		t.Fatalf("AddMessageToMailbox: %v", err)
	}

	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("got %d/%d deliveries, want 1/1 (message echoes back to the sender too)", len(gotA), len(gotB))
	}
}

func TestAddMessageReplaysHistoryToLateSubscriber(t *testing.T) {
	app := NewApplication("app1")
	app.OpenMailbox("mbox1", "sideA", noopListener)
	app.AddMessageToMailbox("mbox1", MailboxMessage{ID: "m1", Side: "sideA", Phase: wire.PhasePake})

	var late []wire.MailboxMessage
	app.OpenMailbox("mbox1", "sideB", func(m wire.MailboxMessage) { late = append(late, m) })

	if len(late) != 1 {
		t.Fatalf("got %d replayed messages, want 1", len(late))
	}
}
