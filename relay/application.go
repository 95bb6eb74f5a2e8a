package relay

import (
	"crypto/rand"
	"encoding/base32"
	"strconv"
	"strings"
	"sync"

	"github.com/rotunda-labs/wormhole-relay/relayerr"
)

const (
	nameplateMin = 1
	nameplateMax = 998
)

// Nameplate pairs a short numeric id with the mailbox it points at and the
// sides that currently hold it.
type Nameplate struct {
	MailboxID string
	Sides     []string
}

func (n *Nameplate) isEmpty() bool { return len(n.Sides) == 0 }

// Application is one app-id's namespace: its own nameplates and mailboxes,
// isolated from every other app-id sharing this server. Everything here
// lives only in memory for the process's lifetime - there is no persistence
// to lose, and nothing to migrate on restart.
type Application struct {
	ID string

	mu         sync.Mutex
	nameplates map[int]*Nameplate
	mailboxes  map[string]*Mailbox
}

// NewApplication returns an empty namespace for the given app-id.
func NewApplication(id string) *Application {
	return &Application{
		ID:         id,
		nameplates: make(map[int]*Nameplate),
		mailboxes:  make(map[string]*Mailbox),
	}
}

// GetNameplateIDs returns the currently active nameplate ids, in no
// particular order.
func (a *Application) GetNameplateIDs() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]int, 0, len(a.nameplates))
	for id := range a.nameplates {
		ids = append(ids, id)
	}
	return ids
}

// AllocateNameplate claims the smallest free nameplate id for side, opening
// its mailbox in the process, and returns the id. Returns
// relayerr.ErrNameplatesExhausted if the whole 1..998 range is in use.
func (a *Application) AllocateNameplate(side string, notify MailboxListener) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id := nameplateMin; id <= nameplateMax; id++ {
		if _, taken := a.nameplates[id]; !taken {
			if _, err := a.claimNameplateLocked(id, side, notify); err != nil {
				return 0, err
			}
			return id, nil
		}
	}
	return 0, relayerr.ErrNameplatesExhausted
}

// ClaimNameplate associates side with nameplate id, creating its mailbox on
// the first claim. A duplicate claim by a side already holding id is a no-op.
// A third distinct side still attaches - so it can later release - but the
// call returns a *relayerr.CrowdedNameplateError.
func (a *Application) ClaimNameplate(id int, side string, notify MailboxListener) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claimNameplateLocked(id, side, notify)
}

func (a *Application) claimNameplateLocked(id int, side string, notify MailboxListener) (string, error) {
	np, ok := a.nameplates[id]
	if !ok {
		mailboxID := generateMailboxID()
		a.openMailboxLocked(mailboxID, side, notify)
		a.nameplates[id] = &Nameplate{MailboxID: mailboxID, Sides: []string{side}}
		return mailboxID, nil
	}

	for _, s := range np.Sides {
		if s == side {
			return np.MailboxID, nil
		}
	}
	np.Sides = append(np.Sides, side)
	if len(np.Sides) >= 3 {
		return np.MailboxID, &relayerr.CrowdedNameplateError{Nameplate: strconv.Itoa(id)}
	}
	return np.MailboxID, nil
}

// ReleaseNameplate detaches side from nameplate id, freeing the nameplate if
// it becomes empty. An unknown id, or a side that never claimed it, is
// silently ignored - a client racing a disconnect against a release is
// expected traffic, not a protocol error.
func (a *Application) ReleaseNameplate(id int, side string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	np, ok := a.nameplates[id]
	if !ok {
		return
	}
	np.Sides = removeString(np.Sides, side)
	if np.isEmpty() {
		delete(a.nameplates, id)
	}
}

// RemoveSideFromNameplates detaches side from every nameplate it holds,
// freeing any that become empty. Used to clean up after a connection drops
// without sending an explicit release.
func (a *Application) RemoveSideFromNameplates(side string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, np := range a.nameplates {
		np.Sides = removeString(np.Sides, side)
		if np.isEmpty() {
			delete(a.nameplates, id)
		}
	}
}

// OpenMailbox subscribes side to mailbox id, creating the mailbox if this is
// the first side to open it, and replaying its history to notify. A third
// subscriber still attaches - so it can later close - but the call returns a
// *relayerr.CrowdedMailboxError.
func (a *Application) OpenMailbox(id, side string, notify MailboxListener) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openMailboxLocked(id, side, notify)
}

func (a *Application) openMailboxLocked(id, side string, notify MailboxListener) error {
	mb, ok := a.mailboxes[id]
	if !ok {
		mb = newMailbox(id)
		a.mailboxes[id] = mb
	}
	if n := mb.addSubscriber(side, notify); n >= 3 {
		return &relayerr.CrowdedMailboxError{Mailbox: id}
	}
	return nil
}

// CloseMailbox detaches side from mailbox id, freeing the mailbox once no
// side remains subscribed. Returns a *relayerr.UnknownMailboxError for an id
// that was never opened.
func (a *Application) CloseMailbox(id, side string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	mb, ok := a.mailboxes[id]
	if !ok {
		return &relayerr.UnknownMailboxError{Mailbox: id}
	}
	if mb.removeSubscriberBySide(side) == 0 {
		delete(a.mailboxes, id)
	}
	return nil
}

// AddMessageToMailbox appends msg to mailbox id's history and forwards it to
// every side currently subscribed to it, then reaps any mailbox left with no
// subscribers. Returns a *relayerr.UnknownMailboxError for an id that was
// never opened.
func (a *Application) AddMessageToMailbox(id string, msg MailboxMessage) error {
	a.mu.Lock()
	mb, ok := a.mailboxes[id]
	a.mu.Unlock()
	if !ok {
		return &relayerr.UnknownMailboxError{Mailbox: id}
	}
	mb.addMessage(msg)

	a.mu.Lock()
	defer a.mu.Unlock()
	for mid, other := range a.mailboxes {
		other.mu.Lock()
		empty := len(other.subscribers) == 0
		other.mu.Unlock()
		if empty {
			delete(a.mailboxes, mid)
		}
	}
	return nil
}

// RemoveSubscriberFromMailboxes detaches side from every mailbox it is
// subscribed to, freeing any that become empty. Used to clean up after a
// connection drops without sending an explicit close.
func (a *Application) RemoveSubscriberFromMailboxes(side string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, mb := range a.mailboxes {
		if mb.removeSubscriberBySide(side) == 0 {
			delete(a.mailboxes, id)
		}
	}
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// generateMailboxID returns 13 characters of random, lowercase, unpadded
// base32 - the mailbox id namespace.
func generateMailboxID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return strings.ToLower(enc.EncodeToString(b))
}
