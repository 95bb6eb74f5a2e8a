package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rotunda-labs/wormhole-relay/audit"
	"github.com/rotunda-labs/wormhole-relay/config"
	"github.com/rotunda-labs/wormhole-relay/relayerr"
	"github.com/rotunda-labs/wormhole-relay/wire"
)

const (
	readWait  = 60 * time.Second
	writeWait = 10 * time.Second

	pingInterval = (readWait * 9) / 10

	maxMessageSize = 4096
)

// Client wraps up the websocket connection with a sending buffer and the
// per-connection protocol state machine: bind -> allocate/claim -> open ->
// add* -> close.
type Client struct {
	conn       *websocket.Conn
	sendBuffer chan wire.ServerMessage

	App       *Application
	Side      string
	Nameplate string
	MailboxID string

	Allocated bool
	Claimed   bool
	Released  bool
	Closed    bool
}

// Close terminates the client connection and cleans up any nameplate or
// mailbox subscription it held.
func (c *Client) Close() {
	if c.App != nil && c.Side != "" {
		c.App.RemoveSubscriberFromMailboxes(c.Side)
		c.App.RemoveSideFromNameplates(c.Side)
		auditTrail.Record(audit.Event{Kind: audit.KindDisconnect, AppID: c.App.ID, Side: c.Side})
	}

	close(c.sendBuffer)

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// IsBound returns true if the client has already bound to the server.
func (c Client) IsBound() bool {
	return c.App != nil && c.Side != ""
}

func (c *Client) watchReads() {
	defer func() {
		unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(readWait))

	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readWait))
		LogDebug(c, "received pong from client")
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				LogErr(c, "reading from socket connection", err)
			}
			break
		}

		LogDebugf(c, "received message from client %s", string(message))
		c.OnMessage(message)
	}
}

func (c *Client) watchWrites() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	for {
		select {
		case msgObj, ok := <-c.sendBuffer:
			if c.conn == nil {
				return
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				LogDebug(c, "write channel was closed, disconnecting client")
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				LogDebug(c, "failed to get a writer for client")
				return
			}
			if err := json.NewEncoder(w).Encode(msgObj); err != nil {
				LogErr(c, "failed to encode message", err)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				LogDebug(c, "failed to write ping, disconnecting client")
				return
			}
			LogDebug(c, "sent ping message to client")
		}
	}
}

// mailboxMessage is the MailboxListener callback bound to this client's side
// when it opens a mailbox: every message added to it, plus its replayed
// history, arrives here and is forwarded straight onto the send buffer.
func (c *Client) mailboxMessage(m wire.MailboxMessage) {
	if c.conn == nil {
		return
	}
	LogDebug(c, "received mailbox event")
	c.sendBuffer <- m
}

// OnConnect is called when the client has successfully been registered to
// the server.
func (c *Client) OnConnect() {
	c.sendBuffer <- wire.WelcomeMessage{
		Envelope: wire.NewEnvelope(wire.ServerWelcome, ""),
		Welcome:  service.Welcome,
	}
}

// OnMessage is called when a message from the client is received and needs
// to be parsed and dispatched.
func (c *Client) OnMessage(src []byte) {
	cmd, err := wire.ParseClientCommand(src)
	if err != nil {
		c.messageError(err, src)
		return
	}

	LogInfof(c, "received message %s", cmd.Tag())

	c.sendBuffer <- wire.AckMessage{Envelope: wire.NewEnvelope(wire.ServerAck, cmd.CommandID())}

	if !c.IsBound() && cmd.Tag() != wire.ClientPing && cmd.Tag() != wire.ClientBind && cmd.Tag() != wire.ClientSubmitPermissions {
		c.messageError(relayerr.ErrBindRequired, src)
		return
	}

	var e error
	switch m := cmd.(type) {
	case wire.Ping:
		c.HandlePing(m)
	case wire.Bind:
		e = c.HandleBind(m)
	case wire.List:
		e = c.HandleList(m)
	case wire.Allocate:
		e = c.HandleAllocate(m)
	case wire.Claim:
		e = c.HandleClaim(m)
	case wire.Release:
		e = c.HandleRelease(m)
	case wire.Open:
		e = c.HandleOpen(m)
	case wire.Add:
		e = c.HandleAdd(m)
	case wire.Close:
		e = c.HandleClose(m)
	case wire.SubmitPermissions:
		// accepted but no permission scheme is enforced
	default:
		e = fmt.Errorf("unsupported command %q", cmd.Tag())
	}

	if e != nil {
		c.messageError(e, src)
	}
}

// messageError builds and sends the error reply for a rejected command.
// Errors the caller didn't mark as client-visible are masked so internal
// details never leak to the wire.
func (c *Client) messageError(err error, orig []byte) {
	LogErr(c, "error from client message", err)

	if !relayerr.IsClientVisible(err) {
		LogErr(c, "internal error found during messageError before going to client", err)
		err = fmt.Errorf("internal error")
	}

	// Echo the command's id when the frame carries one; a frame that is not
	// JSON at all yields an envelope without an id.
	var probe wire.CommandEnvelope
	_ = json.Unmarshal(orig, &probe)

	c.sendBuffer <- wire.ErrorMessage{
		Envelope: wire.NewEnvelope(wire.ServerError, probe.ID),
		Error:    err.Error(),
		Orig:     orig,
	}
}

// HandlePing responds to a ping with the matching pong.
func (c *Client) HandlePing(m wire.Ping) {
	c.sendBuffer <- wire.PongMessage{
		Envelope: wire.NewEnvelope(wire.ServerPong, m.CommandID()),
		Ping:     m.Ping,
	}
	LogDebugf(c, "received ping %d", m.Ping)
}

// HandleBind binds the connection to an app-id and side. Must be the first
// command on a new connection (besides ping and submit-permissions).
func (c *Client) HandleBind(m wire.Bind) error {
	if c.IsBound() {
		return relayerr.ErrAlreadyBound
	} else if m.AppID == "" || m.Side == "" {
		return relayerr.ErrMalformedMessage
	}

	c.App = service.GetApp(m.AppID)
	c.Side = m.Side

	auditTrail.Record(audit.Event{Kind: audit.KindBind, AppID: m.AppID, Side: m.Side})
	LogInfof(c, "bound client to app %s and side %s", m.AppID, m.Side)
	return nil
}

// HandleList replies with the currently active nameplates, or an empty list
// when the server's AllowList option is disabled.
func (c *Client) HandleList(m wire.List) error {
	if !config.Opts.Relay.AllowList {
		c.sendBuffer <- wire.NameplatesMessage{
			Envelope:   wire.NewEnvelope(wire.ServerNameplates, m.CommandID()),
			Nameplates: []wire.NameplateEntry{},
		}
		return nil
	}

	ids := c.App.GetNameplateIDs()
	entries := make([]wire.NameplateEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, wire.NameplateEntry{ID: strconv.Itoa(id)})
	}

	c.sendBuffer <- wire.NameplatesMessage{
		Envelope:   wire.NewEnvelope(wire.ServerNameplates, m.CommandID()),
		Nameplates: entries,
	}
	return nil
}

// HandleAllocate reserves the smallest free nameplate for this side. A
// connection may only allocate once.
func (c *Client) HandleAllocate(m wire.Allocate) error {
	if c.Allocated {
		return relayerr.ErrAlreadyOpen
	}

	id, err := c.App.AllocateNameplate(c.Side, c.mailboxMessage)
	if err != nil {
		LogErr(c, "failed to allocate nameplate for allocate command", err)
		return err
	}

	c.Allocated = true
	c.Nameplate = strconv.Itoa(id)

	auditTrail.Record(audit.Event{Kind: audit.KindAllocate, AppID: c.App.ID, Side: c.Side, Nameplate: c.Nameplate})

	c.sendBuffer <- wire.AllocatedMessage{
		Envelope:  wire.NewEnvelope(wire.ServerAllocated, m.CommandID()),
		Nameplate: c.Nameplate,
	}
	return nil
}

// HandleClaim attaches this side to a specific nameplate instead of an
// auto-allocated one, opening its mailbox in the process.
func (c *Client) HandleClaim(m wire.Claim) error {
	if c.Claimed {
		return relayerr.ErrAlreadyOpen
	}
	if m.Nameplate == "" {
		return relayerr.ErrMalformedMessage
	}

	id, err := strconv.Atoi(m.Nameplate)
	if err != nil {
		return relayerr.ErrMalformedMessage
	}

	mboxID, err := c.App.ClaimNameplate(id, c.Side, c.mailboxMessage)
	if err != nil {
		if _, crowded := err.(*relayerr.CrowdedNameplateError); !crowded {
			LogErr(c, "failed to claim nameplate for claim command", err)
			return err
		}
		// A crowded claim still succeeds in attaching this side - report the
		// mailbox id to the client rather than failing the command outright.
		LogErr(c, "claim attached to an already-crowded nameplate", err)
	}

	c.Claimed = true
	c.Nameplate = m.Nameplate
	c.MailboxID = mboxID

	auditTrail.Record(audit.Event{Kind: audit.KindClaim, AppID: c.App.ID, Side: c.Side, Nameplate: m.Nameplate, MailboxID: mboxID})

	c.sendBuffer <- wire.ClaimedMessage{
		Envelope: wire.NewEnvelope(wire.ServerClaimed, m.CommandID()),
		Mailbox:  mboxID,
	}
	return nil
}

// HandleRelease detaches this side from the nameplate it claimed or was
// allocated. The nameplate field is optional but must match when supplied.
func (c *Client) HandleRelease(m wire.Release) error {
	if c.Released {
		return relayerr.ErrAlreadyOpen
	}
	if m.Nameplate != "" && m.Nameplate != c.Nameplate {
		return relayerr.ErrMalformedMessage
	}
	if c.Nameplate == "" {
		return relayerr.ErrNameplateRequired
	}

	id, err := strconv.Atoi(c.Nameplate)
	if err != nil {
		return relayerr.ErrMalformedMessage
	}

	c.App.ReleaseNameplate(id, c.Side)
	c.Released = true

	auditTrail.Record(audit.Event{Kind: audit.KindRelease, AppID: c.App.ID, Side: c.Side, Nameplate: c.Nameplate})

	c.sendBuffer <- wire.ReleasedMessage{Envelope: wire.NewEnvelope(wire.ServerReleased, m.CommandID())}
	return nil
}

// HandleOpen subscribes this side to a mailbox's message stream, replaying
// its history first.
func (c *Client) HandleOpen(m wire.Open) error {
	if c.MailboxID != "" {
		return relayerr.ErrAlreadyOpen
	}
	if m.Mailbox == "" {
		return relayerr.ErrMalformedMessage
	}

	if err := c.App.OpenMailbox(m.Mailbox, c.Side, c.mailboxMessage); err != nil {
		if _, crowded := err.(*relayerr.CrowdedMailboxError); !crowded {
			LogErr(c, "failed to open mailbox for open command", err)
			return err
		}
		LogErr(c, "open attached to an already-crowded mailbox", err)
	}
	c.MailboxID = m.Mailbox

	auditTrail.Record(audit.Event{Kind: audit.KindOpen, AppID: c.App.ID, Side: c.Side, MailboxID: m.Mailbox})
	return nil
}

// HandleAdd appends a phase message to the open mailbox, broadcasting it to
// every side subscribed - including this one.
func (c *Client) HandleAdd(m wire.Add) error {
	if c.MailboxID == "" {
		return relayerr.ErrNameplateRequired
	}
	if m.Phase == "" {
		return relayerr.ErrMalformedMessage
	}

	mmsg := MailboxMessage{
		ID:        m.CommandID(),
		Side:      c.Side,
		Phase:     m.Phase,
		Body:      []byte(m.Body),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}

	if err := c.App.AddMessageToMailbox(c.MailboxID, mmsg); err != nil {
		LogErr(c, "failed to add message for add command", err)
		return err
	}

	return nil
}

// HandleClose detaches this side from its mailbox and reports its closing
// mood. The mailbox field is optional but must match the currently open one.
func (c *Client) HandleClose(m wire.Close) error {
	if c.Closed {
		return relayerr.ErrAlreadyOpen
	}
	if m.Mailbox != "" && c.MailboxID != "" && m.Mailbox != c.MailboxID {
		return relayerr.ErrMalformedMessage
	}
	if c.MailboxID == "" {
		return relayerr.ErrNameplateRequired
	}

	if err := c.App.CloseMailbox(c.MailboxID, c.Side); err != nil {
		LogErr(c, "failed to close mailbox for close command", err)
		return err
	}

	auditTrail.Record(audit.Event{Kind: audit.KindClose, AppID: c.App.ID, Side: c.Side, MailboxID: c.MailboxID, Detail: string(m.Mood)})

	c.MailboxID = ""
	c.Closed = true

	c.sendBuffer <- wire.ClosedMessage{Envelope: wire.NewEnvelope(wire.ServerClosed, m.CommandID())}
	return nil
}
