// Package client implements the client side of the wormhole rendezvous
// protocol: binding to an app-id and side, allocating or claiming a
// nameplate, opening its mailbox, and exchanging pake/version/application
// phase messages with whatever peer claims the same nameplate.
package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/rotunda-labs/wormhole-relay/log"
	"github.com/rotunda-labs/wormhole-relay/wire"
)

// Conn is one client's connection to a mailbox relay.
type Conn struct {
	ws   *websocket.Conn
	side string

	mailbox chan wire.MailboxMessage
	errs    chan wire.ErrorMessage

	allocated chan wire.AllocatedMessage
	claimed   chan wire.ClaimedMessage
	released  chan wire.ReleasedMessage
	closed    chan wire.ClosedMessage

	seen map[string]struct{}
}

// Dial connects to a mailbox relay's websocket endpoint (e.g.
// "ws://127.0.0.1:4000/") and starts its read loop. The connection's side
// identifier is chosen at random here, matching the teacher's one-side-per-
// connection model.
func Dial(url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	side, err := randomHex(8)
	if err != nil {
		ws.Close()
		return nil, err
	}

	c := &Conn{
		ws:        ws,
		side:      side,
		mailbox:   make(chan wire.MailboxMessage, 16),
		errs:      make(chan wire.ErrorMessage, 16),
		allocated: make(chan wire.AllocatedMessage, 1),
		claimed:   make(chan wire.ClaimedMessage, 1),
		released:  make(chan wire.ReleasedMessage, 1),
		closed:    make(chan wire.ClosedMessage, 1),
		seen:      make(map[string]struct{}),
	}

	go c.readLoop()
	return c, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Side returns this connection's randomly generated side identifier.
func (c *Conn) Side() string { return c.side }

func (c *Conn) readLoop() {
	defer close(c.mailbox)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			log.Debugf("client connection closed: %s", err.Error())
			return
		}

		var probe struct {
			Type wire.ServerTag `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			log.Warnf("failed to parse server message: %s", err.Error())
			continue
		}

		switch probe.Type {
		case wire.ServerAllocated:
			var m wire.AllocatedMessage
			if json.Unmarshal(data, &m) == nil {
				c.allocated <- m
			}
		case wire.ServerClaimed:
			var m wire.ClaimedMessage
			if json.Unmarshal(data, &m) == nil {
				c.claimed <- m
			}
		case wire.ServerReleased:
			var m wire.ReleasedMessage
			if json.Unmarshal(data, &m) == nil {
				c.released <- m
			}
		case wire.ServerClosed:
			var m wire.ClosedMessage
			if json.Unmarshal(data, &m) == nil {
				c.closed <- m
			}
		case wire.ServerMessage_:
			var m wire.MailboxMessage
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			key := m.Side + "|" + m.Phase.String()
			if _, dup := c.seen[key]; dup {
				continue
			}
			c.seen[key] = struct{}{}
			c.mailbox <- m
		case wire.ServerError:
			var m wire.ErrorMessage
			if json.Unmarshal(data, &m) == nil {
				c.errs <- m
			}
		}
	}
}

func (c *Conn) send(cmd interface{}) error {
	return c.ws.WriteJSON(cmd)
}

func newID() string {
	id, _ := randomHex(4)
	return id
}

// Bind registers this connection under appID and this connection's side.
func (c *Conn) Bind(appID string) error {
	return c.send(wire.Bind{
		CommandEnvelope: wire.CommandEnvelope{ID: newID(), Type: wire.ClientBind},
		AppID:           appID,
		Side:            c.side,
	})
}

// Allocate requests a fresh nameplate and blocks for the server's reply.
func (c *Conn) Allocate(ctx context.Context) (string, error) {
	if err := c.send(wire.Allocate{CommandEnvelope: wire.CommandEnvelope{ID: newID(), Type: wire.ClientAllocate}}); err != nil {
		return "", err
	}
	select {
	case m := <-c.allocated:
		return m.Nameplate, nil
	case e := <-c.errs:
		return "", errors.New(e.Error)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Claim claims nameplate and blocks for the server's reply with its mailbox id.
func (c *Conn) Claim(ctx context.Context, nameplate string) (string, error) {
	if err := c.send(wire.Claim{
		CommandEnvelope: wire.CommandEnvelope{ID: newID(), Type: wire.ClientClaim},
		Nameplate:       nameplate,
	}); err != nil {
		return "", err
	}
	select {
	case m := <-c.claimed:
		return m.Mailbox, nil
	case e := <-c.errs:
		return "", errors.New(e.Error)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Release releases nameplate.
func (c *Conn) Release(ctx context.Context, nameplate string) error {
	if err := c.send(wire.Release{
		CommandEnvelope: wire.CommandEnvelope{ID: newID(), Type: wire.ClientRelease},
		Nameplate:       nameplate,
	}); err != nil {
		return err
	}
	select {
	case <-c.released:
		return nil
	case e := <-c.errs:
		return errors.New(e.Error)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open subscribes to mailbox; messages arrive on Messages() from then on.
func (c *Conn) Open(mailbox string) error {
	return c.send(wire.Open{
		CommandEnvelope: wire.CommandEnvelope{ID: newID(), Type: wire.ClientOpen},
		Mailbox:         mailbox,
	})
}

// Add appends a phase message to the open mailbox.
func (c *Conn) Add(phase wire.Phase, body []byte) error {
	return c.send(wire.Add{
		CommandEnvelope: wire.CommandEnvelope{ID: newID(), Type: wire.ClientAdd},
		Phase:           phase,
		Body:            wire.HexBytes(body),
	})
}

// Close closes the mailbox with the given mood and blocks for confirmation.
func (c *Conn) Close(ctx context.Context, mood wire.Mood) error {
	if err := c.send(wire.Close{
		CommandEnvelope: wire.CommandEnvelope{ID: newID(), Type: wire.ClientClose},
		Mood:            mood,
	}); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return nil
	case e := <-c.errs:
		return errors.New(e.Error)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns deduplicated mailbox messages - both freshly added and
// replayed history - as they arrive. The caller is responsible for
// filtering out its own side's echoes.
func (c *Conn) Messages() <-chan wire.MailboxMessage { return c.mailbox }

// Shutdown closes the underlying websocket connection.
func (c *Conn) Shutdown() {
	c.ws.Close()
}

// waitForPeerPhase blocks until a message from a side other than conn's own
// arrives carrying the given phase.
func waitForPeerPhase(ctx context.Context, conn *Conn, phase wire.Phase) (wire.MailboxMessage, error) {
	for {
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				return wire.MailboxMessage{}, fmt.Errorf("client: connection closed waiting for phase %s", phase)
			}
			if m.Side == conn.Side() || m.Phase != phase {
				continue
			}
			return m, nil
		case <-ctx.Done():
			return wire.MailboxMessage{}, ctx.Err()
		}
	}
}
