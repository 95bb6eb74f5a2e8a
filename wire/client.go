package wire

import (
	"encoding/json"
	"errors"
)

// ClientTag identifies the kind of command a client sent.
type ClientTag string

const (
	ClientSubmitPermissions ClientTag = "submit-permissions"
	ClientBind              ClientTag = "bind"
	ClientList              ClientTag = "list"
	ClientAllocate          ClientTag = "allocate"
	ClientClaim             ClientTag = "claim"
	ClientRelease           ClientTag = "release"
	ClientOpen              ClientTag = "open"
	ClientAdd               ClientTag = "add"
	ClientClose             ClientTag = "close"
	ClientPing              ClientTag = "ping"
)

// ErrUnknownClientTag is returned by ParseClientCommand when the "type" field
// doesn't match any known command.
var ErrUnknownClientTag = errors.New("wire: unknown client command type")

// ClientCommand is implemented by every decoded client command. The embedded
// CommandEnvelope carries the correlation id the server must echo back.
type ClientCommand interface {
	CommandID() string
	Tag() ClientTag
}

// CommandEnvelope is the set of fields common to every client command.
type CommandEnvelope struct {
	ID   string    `json:"id"`
	Type ClientTag `json:"type"`
}

func (e CommandEnvelope) CommandID() string { return e.ID }
func (e CommandEnvelope) Tag() ClientTag    { return e.Type }

type SubmitPermissions struct {
	CommandEnvelope
	Method string          `json:"method"`
	Info   json.RawMessage `json:"info,omitempty"`
}

type Bind struct {
	CommandEnvelope
	AppID string `json:"appid"`
	Side  string `json:"side"`
}

type List struct {
	CommandEnvelope
}

type Allocate struct {
	CommandEnvelope
}

type Claim struct {
	CommandEnvelope
	Nameplate string `json:"nameplate"`
}

type Release struct {
	CommandEnvelope
	Nameplate string `json:"nameplate,omitempty"`
}

type Open struct {
	CommandEnvelope
	Mailbox string `json:"mailbox"`
}

type Add struct {
	CommandEnvelope
	Phase Phase    `json:"phase"`
	Body  HexBytes `json:"body"`
}

type Close struct {
	CommandEnvelope
	Mailbox string `json:"mailbox,omitempty"`
	Mood    Mood   `json:"mood,omitempty"`
}

type Ping struct {
	CommandEnvelope
	Ping uint32 `json:"ping"`
}

// ParseClientCommand inspects the "type" field of raw and unmarshals it into
// the matching concrete command. The returned value satisfies ClientCommand.
func ParseClientCommand(raw []byte) (ClientCommand, error) {
	var probe CommandEnvelope
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case ClientSubmitPermissions:
		var m SubmitPermissions
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientBind:
		var m Bind
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientList:
		var m List
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientAllocate:
		var m Allocate
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientClaim:
		var m Claim
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientRelease:
		var m Release
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientOpen:
		var m Open
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientAdd:
		var m Add
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientClose:
		var m Close
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ClientPing:
		var m Ping
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, ErrUnknownClientTag
	}
}
