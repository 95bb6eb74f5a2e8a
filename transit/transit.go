// Package transit is an independent bulk-transfer relay: once two clients
// have matched on a shared token, the relay pipes raw bytes between their
// two TCP connections without looking at what's inside. It adds no
// encryption of its own, and the reference client's file transfer writes the
// file's plain bytes, so the relay forwards them as sent. It runs as its own
// listener, separate from the mailbox websocket server.
package transit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rotunda-labs/wormhole-relay/log"
)

type transitConn struct {
	Side   string
	Client *Client
}

var (
	listener net.Listener

	lock    sync.Mutex
	pending map[string][]transitConn
)

// Initialize opens the transit relay's listening socket on host:port.
func Initialize(host string, port uint) error {
	pending = make(map[string][]transitConn)

	addr := fmt.Sprintf("%s:%d", host, port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	listener = l
	log.Infof("transit relay listening on %s", addr)
	return nil
}

// Start accepts incoming connections in its own goroutine until the listener
// is closed by Shutdown.
func Start() error {
	if listener == nil {
		return errors.New("transit: not initialized")
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Debugf("transit listener closed: %s", err.Error())
				return
			}

			client := NewClient(conn)
			go client.HandleConnection()
		}
	}()

	return nil
}

// Shutdown closes the listening socket. Connections already paired are left
// to wind down on their own; closing one side of a pipe naturally closes the
// other through Client.Close.
func Shutdown(ctx context.Context) error {
	if listener == nil {
		return nil
	}
	err := listener.Close()
	listener = nil
	log.Info("transit relay shut down")
	return err
}
