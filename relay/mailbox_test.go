package relay

import (
	"testing"

	"github.com/rotunda-labs/wormhole-relay/wire"
)

func TestMailboxAddSubscriberDedupsBySide(t *testing.T) {
	mb := newMailbox("mbox1")

	if n := mb.addSubscriber("side1", noopListener); n != 1 {
		t.Fatalf("got %d subscribers, want 1", n)
	}
	if n := mb.addSubscriber("side1", noopListener); n != 1 {
		t.Fatalf("re-subscribing the same side changed count to %d, want 1", n)
	}
}

func TestMailboxRemoveSubscriberBySide(t *testing.T) {
	mb := newMailbox("mbox1")
	mb.addSubscriber("side1", noopListener)
	mb.addSubscriber("side2", noopListener)

	if n := mb.removeSubscriberBySide("side1"); n != 1 {
		t.Fatalf("got %d remaining, want 1", n)
	}
	if n := mb.removeSubscriberBySide("side1"); n != 1 {
		t.Fatalf("removing an already-removed side changed count to %d, want 1 (no-op)", n)
	}
}

func TestMailboxAddMessageAppendsAndIsNotIdempotent(t *testing.T) {
	mb := newMailbox("mbox1")

	var deliveries int
	mb.addSubscriber("side1", func(wire.MailboxMessage) { deliveries++ })

	msg := MailboxMessage{ID: "m1", Side: "side1", Phase: wire.PhasePake}
	mb.addMessage(msg)
	mb.addMessage(msg)

	if deliveries != 2 {
		t.Fatalf("got %d deliveries, want 2 (adding the same message twice delivers twice)", deliveries)
	}
	if len(mb.messages) != 2 {
		t.Fatalf("got %d history entries, want 2", len(mb.messages))
	}
}

func TestMailboxAddSubscriberReplaysHistory(t *testing.T) {
	mb := newMailbox("mbox1")
	mb.addMessage(MailboxMessage{ID: "m1", Side: "side1", Phase: wire.PhasePake})
	mb.addMessage(MailboxMessage{ID: "m2", Side: "side1", Phase: wire.PhaseVersion})

	var replayed []wire.MailboxMessage
	mb.addSubscriber("side2", func(m wire.MailboxMessage) { replayed = append(replayed, m) })

	if len(replayed) != 2 {
		t.Fatalf("got %d replayed messages, want 2", len(replayed))
	}
	if replayed[0].Phase != wire.PhasePake || replayed[1].Phase != wire.PhaseVersion {
		t.Fatalf("replay out of order: %+v", replayed)
	}
}
