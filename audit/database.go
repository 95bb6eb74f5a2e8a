// Package audit is a best-effort, non-authoritative log of connection
// lifecycle events (bind, claim, open, close, disconnect...). It exists
// purely for operator visibility - nothing in the relay's protocol decisions
// ever reads it back, and losing it changes nothing about mailbox or
// nameplate state, which stays in memory only.
package audit

import (
	"database/sql"
	"errors"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rotunda-labs/wormhole-relay/log"
)

// ErrNotOpen is returned by Prune when no recorder has been opened.
var ErrNotOpen = errors.New("audit: database connection is not open")

// Kind identifies the sort of lifecycle event being recorded.
type Kind string

const (
	KindConnect    Kind = "connect"
	KindBind       Kind = "bind"
	KindAllocate   Kind = "allocate"
	KindClaim      Kind = "claim"
	KindRelease    Kind = "release"
	KindOpen       Kind = "open"
	KindClose      Kind = "close"
	KindDisconnect Kind = "disconnect"
	KindError      Kind = "error"
)

// Event is one lifecycle occurrence. Fields that don't apply to a given Kind
// are left zero.
type Event struct {
	Kind      Kind
	AppID     string
	Side      string
	Nameplate string
	MailboxID string
	Detail    string
}

// Recorder drains Events off a channel in its own goroutine and writes them
// to sqlite, so a slow or stalled disk never holds up a registry mutation.
type Recorder struct {
	db     *sql.DB
	events chan recordedEvent
	done   chan struct{}
}

type recordedEvent struct {
	Event
	at int64
}

// Open creates (or reuses) a sqlite file at path and starts the background
// writer. An empty path disables auditing entirely; Record becomes a no-op
// and Close is safe to call on the result.
func Open(path string) (*Recorder, error) {
	if path == "" {
		return &Recorder{}, nil
	}

	createSchema := false
	if _, err := os.Stat(path); err != nil {
		createSchema = true
		if _, err := os.Create(path); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		db:     conn,
		events: make(chan recordedEvent, 256),
		done:   make(chan struct{}),
	}

	if createSchema {
		if err := r.createSchema(); err != nil {
			conn.Close()
			return nil, err
		}
	} else if err := r.checkMigration(); err != nil {
		conn.Close()
		return nil, err
	}

	go r.run()
	log.Infof("audit trail opened at %s", path)
	return r, nil
}

func (r *Recorder) createSchema() error {
	if _, err := r.db.Exec(eventSchema); err != nil {
		return err
	}
	_, err := r.db.Exec(`INSERT INTO version (version) VALUES ($1)`, schemaVersion)
	return err
}

func (r *Recorder) checkMigration() error {
	var cur int
	row := r.db.QueryRow(`SELECT version FROM version`)
	if err := row.Scan(&cur); err != nil {
		if err == sql.ErrNoRows {
			return errors.New("audit: database has no version row, it may be corrupt")
		}
		return err
	}
	if cur > schemaVersion {
		return errors.New("audit: database schema is newer than this binary understands")
	}
	return nil
}

// Record enqueues an event for asynchronous persistence. If the recorder was
// never opened (path == ""), or its queue is momentarily full, the event is
// dropped - auditing must never back-pressure the relay.
func (r *Recorder) Record(ev Event) {
	if r == nil || r.db == nil {
		return
	}
	select {
	case r.events <- recordedEvent{Event: ev, at: time.Now().Unix()}:
	default:
		log.Warn("audit event queue full, dropping event")
	}
}

func (r *Recorder) run() {
	for {
		select {
		case re, ok := <-r.events:
			if !ok {
				return
			}
			r.write(re)
		case <-r.done:
			return
		}
	}
}

func (r *Recorder) write(re recordedEvent) {
	_, err := r.db.Exec(`INSERT INTO events (recorded_at, kind, app_id, side, nameplate, mailbox_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		re.at, string(re.Kind), re.AppID, re.Side, re.Nameplate, re.MailboxID, re.Detail)
	if err != nil {
		log.Errorf("failed to write audit event: %s", err.Error())
	}
}

// Prune deletes events recorded before the given time. Used by the periodic
// retention sweep.
func (r *Recorder) Prune(before time.Time) error {
	if r == nil || r.db == nil {
		return ErrNotOpen
	}
	_, err := r.db.Exec(`DELETE FROM events WHERE recorded_at < $1`, before.Unix())
	return err
}

// Close stops the background writer and closes the database connection.
// Safe to call on a Recorder returned for an empty path.
func (r *Recorder) Close() {
	if r == nil || r.db == nil {
		return
	}
	close(r.done)
	r.db.Close()
}
