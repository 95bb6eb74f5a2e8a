package relay

import (
	"sync"

	"github.com/rotunda-labs/wormhole-relay/wire"
)

// MailboxListener receives every message added to a mailbox, plus a replay of
// its history at subscribe time. Connections implement this by pushing onto
// their own outbound send buffer.
type MailboxListener func(wire.MailboxMessage)

// MailboxMessage is one phase's payload recorded in a mailbox's history.
type MailboxMessage struct {
	ID        string
	Timestamp float64
	Side      string
	Phase     wire.Phase
	Body      []byte
}

func (m MailboxMessage) toWire() wire.MailboxMessage {
	return wire.MailboxMessage{
		Envelope: wire.NewEnvelopeRX(wire.ServerMessage_, m.ID, m.Timestamp),
		Side:     m.Side,
		Phase:    m.Phase,
		Body:     wire.HexBytes(m.Body),
	}
}

type mailboxSubscriber struct {
	side   string
	notify MailboxListener
}

// Mailbox holds the message history for one mailbox id and the sides
// currently subscribed to it. Unlike the rest of an Application, a mailbox
// has no independent existence on disk - it lives exactly as long as it has
// subscribers.
type Mailbox struct {
	ID string

	mu          sync.Mutex
	messages    []MailboxMessage
	subscribers []mailboxSubscriber
}

func newMailbox(id string) *Mailbox {
	return &Mailbox{ID: id}
}

// addSubscriber attaches side, replaying history to notify unless side is
// already subscribed. Returns the subscriber count after the call.
func (m *Mailbox) addSubscriber(side string, notify MailboxListener) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subscribers {
		if s.side == side {
			return len(m.subscribers)
		}
	}

	for _, msg := range m.messages {
		notify(msg.toWire())
	}
	m.subscribers = append(m.subscribers, mailboxSubscriber{side: side, notify: notify})
	return len(m.subscribers)
}

// removeSubscriberBySide detaches side and returns the remaining subscriber
// count. Detaching a side that was never subscribed is a no-op.
func (m *Mailbox) removeSubscriberBySide(side string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.subscribers[:0]
	for _, s := range m.subscribers {
		if s.side != side {
			kept = append(kept, s)
		}
	}
	m.subscribers = kept
	return len(m.subscribers)
}

// addMessage appends msg to the history and forwards it to every currently
// subscribed side, including the one that sent it.
func (m *Mailbox) addMessage(msg MailboxMessage) {
	m.mu.Lock()
	subs := make([]mailboxSubscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	forward := msg.toWire()
	for _, s := range subs {
		s.notify(forward)
	}
}
