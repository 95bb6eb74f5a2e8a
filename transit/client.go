package transit

import (
	"bufio"
	"errors"
	"net"
	"regexp"
	"strings"
	"sync"

	"github.com/rotunda-labs/wormhole-relay/log"
)

// Client wraps a net.Conn with the handshake state needed to pair it with
// its buddy connection on the transit relay.
type Client struct {
	conn net.Conn

	SentOK   bool
	GotToken bool
	TokenBuf []byte
	Token    string
	Side     string
	Mood     string

	Buddy *Client

	mu     sync.Mutex
	closed bool
}

// NewClient returns a new client wrapping con.
func NewClient(con net.Conn) *Client {
	return &Client{
		conn:     con,
		TokenBuf: make([]byte, 0),
	}
}

// Close shuts down the connection and, transitively, its buddy's. Guarded by
// a closed flag so a pair of buddies closing each other can't recurse
// forever.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	buddy := c.Buddy
	c.Buddy = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if buddy != nil {
		buddy.Close()
	}
}

// HandleConnection takes over the connection and processes data from it
// until it errors or is closed.
func (c *Client) HandleConnection() {
	reader := bufio.NewReader(c.conn)
	for {
		data, err := reader.ReadBytes('\n')
		if err != nil {
			if strings.Contains(err.Error(), "closed by the remote host") {
				log.Info("connection closed by remote client")
			} else {
				log.Err("failed to read from client", err)
			}
			c.Close()
			return
		}

		if err := c.handleData(data); err != nil {
			log.Err("failed to handle client message", err)
			c.Close()
			return
		}
	}
}

func (c *Client) handleData(data []byte) error {
	if c.SentOK {
		if c.Buddy != nil {
			c.mu.Lock()
			buddy := c.Buddy
			c.mu.Unlock()
			if buddy != nil {
				if _, err := buddy.conn.Write(data); err != nil {
					return err
				}
			}
			return nil
		}
		return errors.New("bad pipeline")
	} else if c.GotToken {
		c.conn.Write([]byte("impatient"))
		return errors.New("transit impatience failure")
	}

	c.TokenBuf = append(c.TokenBuf, data...)
	tokenStr := string(c.TokenBuf)

	state, _, token := checkOldToken(tokenStr)
	switch state {
	case 1:
		log.Infof("accepting old version token '%s'", token)
		c.processToken(token, "")
		return nil
	case 0:
		return nil // still waiting for more data
	}

	state, _, token, side := checkNewToken(tokenStr)
	switch state {
	case 1:
		log.Infof("accepting new token '%s' for side '%s'", token, side)
		c.processToken(token, side)
		return nil
	case 0:
		return nil // still waiting for more data
	}

	c.conn.Write([]byte("bad handshake"))
	return errors.New("transit handshake failure")
}

var oldTokenLength = len("please relay \n") + (32 * 2)
var oldTokenMatcher = regexp.MustCompile(`^please relay (\w{64})\n`)

// checkOldToken reports whether buf is a match (1), could still become one
// once more data arrives (0), or can never match (-1), for the legacy
// "please relay {64}\n" handshake line.
func checkOldToken(buf string) (state int, hasNewline bool, token string) {
	idx := strings.IndexByte(buf, '\n')
	if idx < 0 {
		if len(buf) >= oldTokenLength {
			return -1, false, "" // no newline yet but already too long to match
		}
		return 0, false, ""
	}

	line := buf[:idx+1]
	if m := oldTokenMatcher.FindStringSubmatch(line); m != nil {
		return 1, true, m[1]
	}
	return -1, true, ""
}

var newTokenLength = len("please relay  for side \n") + (32 * 2) + (8 * 2)
var newTokenMatcher = regexp.MustCompile(`^please relay (\w{64}) for side (\w{16})\n`)

// checkNewToken is checkOldToken's counterpart for the
// "please relay {64} for side {16}\n" handshake line.
func checkNewToken(buf string) (state int, hasNewline bool, token, side string) {
	idx := strings.IndexByte(buf, '\n')
	if idx < 0 {
		if len(buf) >= newTokenLength {
			return -1, false, "", ""
		}
		return 0, false, "", ""
	}

	line := buf[:idx+1]
	if m := newTokenMatcher.FindStringSubmatch(line); m != nil {
		return 1, true, m[1], m[2]
	}
	return -1, true, "", ""
}

func (c *Client) processToken(token, side string) {
	c.Token = token
	c.Side = side
	c.Mood = "lonely"
	c.GotToken = true

	lock.Lock()
	defer lock.Unlock()

	if potentials, ok := pending[token]; ok {
		log.Debugf("searching %d potential connections for %s", len(potentials), token)
		var match *transitConn
		for i, ex := range potentials {
			if ex.Side == "" || side == "" || ex.Side != side {
				match = &potentials[i]

				potentials[i] = potentials[len(potentials)-1]
				potentials = potentials[:len(potentials)-1]

				for _, red := range potentials {
					if red.Client.conn != nil {
						log.Debugf("clearing out redundant pending entry %s", red.Client.conn.RemoteAddr().String())
						red.Client.conn.Write([]byte("redundant"))
					}
					red.Client.Close()
				}

				break
			}
		}

		if match != nil {
			delete(pending, token)

			match.Client.connectWith(c)
			c.connectWith(match.Client)
			return
		}
	}

	pending[token] = []transitConn{
		{Side: side, Client: c},
	}
}

func (c *Client) connectWith(other *Client) {
	c.Mood = "happy"
	c.Buddy = other

	c.conn.Write([]byte("ok\n"))
	c.SentOK = true
}
