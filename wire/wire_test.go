package wire

import (
	"encoding/json"
	"testing"
)

func ptr(s string) *string { return &s }

// These fixed timestamps and field orderings are pinned against the
// reference implementation's own serialization test, so that a Go and a
// Rust peer produce byte-identical frames for identical inputs.
func TestServerMessageSerialization(t *testing.T) {
	cases := []struct {
		name string
		msg  ServerMessage
		want string
	}{
		{
			"welcome",
			WelcomeMessage{
				Envelope: Envelope{ServerTX: 1687594898.0583792, Type: ServerWelcome},
				Welcome:  WelcomeInfo{},
			},
			`{"server_tx":1687594898.0583792,"type":"welcome","welcome":{}}`,
		},
		{
			"ack",
			AckMessage{
				Envelope: Envelope{ID: ptr("5d67"), ServerTX: 1687594898.2351809, Type: ServerAck},
			},
			`{"id":"5d67","server_tx":1687594898.2351809,"type":"ack"}`,
		},
		{
			"allocated",
			AllocatedMessage{
				Envelope:  Envelope{ServerTX: 1687594898.2387502, Type: ServerAllocated},
				Nameplate: "6",
			},
			`{"server_tx":1687594898.2387502,"type":"allocated","nameplate":"6"}`,
		},
		{
			"claimed",
			ClaimedMessage{
				Envelope: Envelope{ServerTX: 1687594898.4249387, Type: ServerClaimed},
				Mailbox:  "ojr7vqldbwayg",
			},
			`{"server_tx":1687594898.4249387,"type":"claimed","mailbox":"ojr7vqldbwayg"}`,
		},
		{
			"released",
			ReleasedMessage{
				Envelope: Envelope{ServerTX: 1687594905.0208652, Type: ServerReleased},
			},
			`{"server_tx":1687594905.0208652,"type":"released"}`,
		},
		{
			"message",
			MailboxMessage{
				Envelope: Envelope{
					ID:       ptr("ec1e"),
					ServerTX: 1687594905.022232,
					ServerRX: func() *float64 { f := 1687594905.0211902; return &f }(),
					Type:     ServerMessage_,
				},
				Side:  "6d89484e10",
				Phase: PhaseVersion,
				Body:  HexBytes{0x60, 0x41},
			},
			`{"id":"ec1e","server_tx":1687594905.022232,"server_rx":1687594905.0211902,"type":"message","side":"6d89484e10","phase":"version","body":"6041"}`,
		},
		{
			"closed",
			ClosedMessage{
				Envelope: Envelope{ServerTX: 1687594905.6118436, Type: ServerClosed},
			},
			`{"server_tx":1687594905.6118436,"type":"closed"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestClientCommandSerialization(t *testing.T) {
	cases := []struct {
		name string
		cmd  interface{}
		want string
	}{
		{
			"bind",
			Bind{
				CommandEnvelope: CommandEnvelope{ID: "5d67", Type: ClientBind},
				AppID:           "lothar.com/wormhole/text-or-file-xfer",
				Side:            "6d89484e10",
			},
			`{"id":"5d67","type":"bind","appid":"lothar.com/wormhole/text-or-file-xfer","side":"6d89484e10"}`,
		},
		{
			"allocate",
			Allocate{CommandEnvelope: CommandEnvelope{ID: "2280", Type: ClientAllocate}},
			`{"id":"2280","type":"allocate"}`,
		},
		{
			"claim",
			Claim{
				CommandEnvelope: CommandEnvelope{ID: "e02d", Type: ClientClaim},
				Nameplate:       "6",
			},
			`{"id":"e02d","type":"claim","nameplate":"6"}`,
		},
		{
			"release",
			Release{
				CommandEnvelope: CommandEnvelope{ID: "8b03", Type: ClientRelease},
				Nameplate:       "6",
			},
			`{"id":"8b03","type":"release","nameplate":"6"}`,
		},
		{
			"open",
			Open{
				CommandEnvelope: CommandEnvelope{ID: "dcf5", Type: ClientOpen},
				Mailbox:         "ojr7vqldbwayg",
			},
			`{"id":"dcf5","type":"open","mailbox":"ojr7vqldbwayg"}`,
		},
		{
			"add",
			Add{
				CommandEnvelope: CommandEnvelope{ID: "d8c1", Type: ClientAdd},
				Phase:           NumberedPhase(0),
				Body:            HexBytes{0xf9, 0x21},
			},
			`{"id":"d8c1","type":"add","phase":"0","body":"f921"}`,
		},
		{
			"close",
			Close{
				CommandEnvelope: CommandEnvelope{ID: "00c2", Type: ClientClose},
				Mailbox:         "ojr7vqldbwayg",
				Mood:            MoodHappy,
			},
			`{"id":"00c2","type":"close","mailbox":"ojr7vqldbwayg","mood":"happy"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.cmd)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestParseClientCommandRoundTrip(t *testing.T) {
	raw := []byte(`{"id":"d8c1","type":"add","phase":"0","body":"f921"}`)
	cmd, err := ParseClientCommand(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	add, ok := cmd.(Add)
	if !ok {
		t.Fatalf("got %T, want Add", cmd)
	}
	if add.CommandID() != "d8c1" || add.Tag() != ClientAdd {
		t.Fatalf("unexpected envelope: %+v", add.CommandEnvelope)
	}
	if n, ok := add.Phase.Number(); !ok || n != 0 {
		t.Fatalf("unexpected phase: %v", add.Phase)
	}
	if string(add.Body) != "\xf9\x21" {
		t.Fatalf("unexpected body: %x", add.Body)
	}
}

func TestParseClientCommandUnknownType(t *testing.T) {
	_, err := ParseClientCommand([]byte(`{"id":"0000","type":"frobnicate"}`))
	if err != ErrUnknownClientTag {
		t.Fatalf("got %v, want ErrUnknownClientTag", err)
	}
}

func TestPhaseFixedTags(t *testing.T) {
	if _, ok := PhasePake.Number(); ok {
		t.Fatalf("pake phase should not parse as numbered")
	}
	if _, ok := PhaseVersion.Number(); ok {
		t.Fatalf("version phase should not parse as numbered")
	}
	if NumberedPhase(42).String() != "42" {
		t.Fatalf("unexpected numbered phase rendering: %s", NumberedPhase(42))
	}
}
