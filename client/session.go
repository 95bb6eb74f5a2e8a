package client

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotunda-labs/wormhole-relay/wire"
	"github.com/rotunda-labs/wormhole-relay/words"
	"github.com/rotunda-labs/wormhole-relay/wormholecrypto"
)

const defaultAppID = "wormhole-relay/transfer"

// phaseText carries a text payload; phaseTransitToken carries the token a
// file transfer's two sides use to pair up on the transit relay instead.
var (
	phaseText         = wire.NumberedPhase(0)
	phaseTransitToken = wire.NumberedPhase(1)
)

// SendOptions configures Send.
type SendOptions struct {
	RelayURL   string // e.g. "ws://127.0.0.1:4000/"
	TransitURL string // e.g. "localhost:4001"; required when FilePath is set
	AppID      string
	Text       string
	FilePath   string
}

// ReceiveOptions configures Receive.
type ReceiveOptions struct {
	RelayURL   string
	TransitURL string
	AppID      string
	Code       string
	OutputPath string // where to write an incoming file; ignored for text
}

// deriveSharedKey stands in for a PAKE exchange: it turns the human code
// itself into the 32-byte secret the rest of the session encrypts under.
// A real implementation would run SPAKE2 using the code as the weak
// password and this as its output; that exchange is out of scope here, so
// the code is hashed directly. This is not a substitute for PAKE's
// offline-dictionary-attack resistance - it only exercises the phase-key
// derivation and authenticated encryption layered on top.
func deriveSharedKey(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}

// formatCode renders the human-memorable code "N-word-word", deriving the
// word pair from the mailbox id's first two bytes.
func formatCode(nameplate, mailboxID string) string {
	var b0, b1 byte
	if len(mailboxID) > 0 {
		b0 = mailboxID[0]
	}
	if len(mailboxID) > 1 {
		b1 = mailboxID[1]
	}
	w0, w1 := words.Pair(b0, b1)
	return fmt.Sprintf("%s-%s-%s", nameplate, w0, w1)
}

// nameplateFromCode extracts the leading nameplate id from a code of the
// form "N-word-word".
func nameplateFromCode(code string) (string, error) {
	parts := strings.SplitN(code, "-", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("client: malformed code %q", code)
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return "", fmt.Errorf("client: malformed code %q: %w", code, err)
	}
	return parts[0], nil
}

// moodForErr reports which mood a session failure should close with: a
// context deadline/cancellation means the peer never showed up (lonely),
// a payload that fails to decrypt means the keys disagree (scary),
// anything else is an unexpected failure (errory).
func moodForErr(err error) wire.Mood {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wire.MoodLonely
	}
	if errors.Is(err, wormholecrypto.ErrDecryptionFailed) || errors.Is(err, wormholecrypto.ErrMessageTooShort) {
		return wire.MoodScary
	}
	return wire.MoodErrory
}

// closeWithMood reports the mailbox closed on a fresh short-lived context -
// err may mean the original ctx is already done, so the close itself cannot
// reuse it - with the mood moodForErr derives from err.
func closeWithMood(conn *Conn, err error) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn.Close(closeCtx, moodForErr(err))
}

func sendEncrypted(conn *Conn, sharedKey []byte, phase wire.Phase, plaintext []byte) error {
	ciphertext, err := wormholecrypto.Seal(plaintext, sharedKey, conn.Side(), phase.String())
	if err != nil {
		return err
	}
	return conn.Add(phase, ciphertext)
}

// nextPeerApplicationPhase blocks until the peer's first post-version
// application message arrives, whichever phase it carries - phaseText for a
// text send or phaseTransitToken for a file send.
func nextPeerApplicationPhase(ctx context.Context, conn *Conn) (wire.MailboxMessage, error) {
	for {
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				return wire.MailboxMessage{}, fmt.Errorf("client: connection closed waiting for application phase")
			}
			if m.Side == conn.Side() || m.Phase == wire.PhasePake || m.Phase == wire.PhaseVersion {
				continue
			}
			return m, nil
		case <-ctx.Done():
			return wire.MailboxMessage{}, ctx.Err()
		}
	}
}

// Send allocates a nameplate, prints the resulting code via its return
// value, and exchanges either a text payload or a file with whichever peer
// claims it. Exactly one of opts.Text or opts.FilePath should be set.
func Send(ctx context.Context, opts SendOptions) (string, error) {
	appID := opts.AppID
	if appID == "" {
		appID = defaultAppID
	}

	conn, err := Dial(opts.RelayURL)
	if err != nil {
		return "", err
	}
	defer conn.Shutdown()

	if err := conn.Bind(appID); err != nil {
		return "", err
	}

	nameplate, err := conn.Allocate(ctx)
	if err != nil {
		return "", err
	}

	claimCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mailboxID, err := conn.Claim(claimCtx, nameplate)
	cancel()
	if err != nil {
		return "", err
	}

	code := formatCode(nameplate, mailboxID)

	if err := conn.Open(mailboxID); err != nil {
		return "", err
	}
	if err := conn.Add(wire.PhasePake, []byte("pake-placeholder")); err != nil {
		closeWithMood(conn, err)
		return "", err
	}

	sharedKey := deriveSharedKey(code)

	if _, err := waitForPeerPhase(ctx, conn, wire.PhasePake); err != nil {
		closeWithMood(conn, err)
		return "", err
	}
	if err := sendEncrypted(conn, sharedKey, wire.PhaseVersion, []byte("{}")); err != nil {
		closeWithMood(conn, err)
		return "", err
	}

	if opts.FilePath != "" {
		if err := sendFile(ctx, conn, sharedKey, opts); err != nil {
			closeWithMood(conn, err)
			return "", err
		}
	} else {
		if err := sendEncrypted(conn, sharedKey, phaseText, []byte(opts.Text)); err != nil {
			closeWithMood(conn, err)
			return "", err
		}
	}

	if _, err := waitForPeerPhase(ctx, conn, wire.PhaseVersion); err != nil {
		closeWithMood(conn, err)
		return "", err
	}

	conn.Release(ctx, nameplate)
	conn.Close(ctx, wire.MoodHappy)

	return code, nil
}

func sendFile(ctx context.Context, conn *Conn, sharedKey []byte, opts SendOptions) error {
	if opts.TransitURL == "" {
		return fmt.Errorf("client: sending a file requires a transit relay address")
	}

	token, err := newTransitToken()
	if err != nil {
		return err
	}
	if err := sendEncrypted(conn, sharedKey, phaseTransitToken, []byte(token)); err != nil {
		return err
	}

	tconn, err := dialTransit(opts.TransitURL, token, conn.Side())
	if err != nil {
		return fmt.Errorf("client: connecting to transit relay: %w", err)
	}
	defer tconn.Close()

	f, err := os.Open(opts.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tconn, f)
	return err
}

// Receive parses a human code, claims its nameplate, and either returns the
// decrypted text payload or writes an incoming file to opts.OutputPath.
func Receive(ctx context.Context, opts ReceiveOptions) (string, error) {
	appID := opts.AppID
	if appID == "" {
		appID = defaultAppID
	}

	nameplate, err := nameplateFromCode(opts.Code)
	if err != nil {
		return "", err
	}

	conn, err := Dial(opts.RelayURL)
	if err != nil {
		return "", err
	}
	defer conn.Shutdown()

	if err := conn.Bind(appID); err != nil {
		return "", err
	}

	claimCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mailboxID, err := conn.Claim(claimCtx, nameplate)
	cancel()
	if err != nil {
		return "", err
	}

	if err := conn.Open(mailboxID); err != nil {
		return "", err
	}
	if err := conn.Add(wire.PhasePake, []byte("pake-placeholder")); err != nil {
		closeWithMood(conn, err)
		return "", err
	}

	sharedKey := deriveSharedKey(opts.Code)

	if _, err := waitForPeerPhase(ctx, conn, wire.PhasePake); err != nil {
		closeWithMood(conn, err)
		return "", err
	}
	if err := sendEncrypted(conn, sharedKey, wire.PhaseVersion, []byte("{}")); err != nil {
		closeWithMood(conn, err)
		return "", err
	}
	if _, err := waitForPeerPhase(ctx, conn, wire.PhaseVersion); err != nil {
		closeWithMood(conn, err)
		return "", err
	}

	appMsg, err := nextPeerApplicationPhase(ctx, conn)
	if err != nil {
		closeWithMood(conn, err)
		return "", err
	}

	var result string
	switch appMsg.Phase {
	case phaseTransitToken:
		result, err = receiveFile(conn, sharedKey, appMsg, opts)
		if err != nil {
			closeWithMood(conn, err)
			return "", err
		}
	default:
		var plaintext []byte
		plaintext, err = wormholecrypto.Open([]byte(appMsg.Body), sharedKey, appMsg.Side, appMsg.Phase.String())
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			conn.Close(closeCtx, wire.MoodScary)
			cancel()
			return "", err
		}
		result = string(plaintext)
	}

	conn.Release(ctx, nameplate)
	conn.Close(ctx, wire.MoodHappy)

	return result, nil
}

func receiveFile(conn *Conn, sharedKey []byte, tokenMsg wire.MailboxMessage, opts ReceiveOptions) (string, error) {
	if opts.TransitURL == "" {
		return "", fmt.Errorf("client: receiving a file requires a transit relay address")
	}
	if opts.OutputPath == "" {
		return "", fmt.Errorf("client: receiving a file requires an output path")
	}

	token, err := wormholecrypto.Open([]byte(tokenMsg.Body), sharedKey, tokenMsg.Side, tokenMsg.Phase.String())
	if err != nil {
		return "", fmt.Errorf("client: decrypting transit token: %w", err)
	}

	tconn, err := dialTransit(opts.TransitURL, string(token), conn.Side())
	if err != nil {
		return "", fmt.Errorf("client: connecting to transit relay: %w", err)
	}
	defer tconn.Close()

	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, tconn); err != nil {
		return "", err
	}

	return opts.OutputPath, nil
}
