package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotunda-labs/wormhole-relay/audit"
	"github.com/rotunda-labs/wormhole-relay/config"
	"github.com/rotunda-labs/wormhole-relay/log"
)

var (
	router  *http.ServeMux
	server  *http.Server
	service *Service

	clients     map[*Client]struct{}
	lockClients sync.Mutex

	register   chan *Client
	unregister chan *Client
)

// Initialize sets up the relay server's initial systems: the in-memory
// registry, the audit trail, and the HTTP router.
func Initialize() error {
	if config.Opts == nil {
		panic("attempted to initialize relay without a loaded config")
	}

	var err error

	service, err = NewService()
	if err != nil {
		return err
	}

	auditTrail, err = audit.Open(config.Opts.Relay.DBFile)
	if err != nil {
		return err
	}

	clients = make(map[*Client]struct{})
	register = make(chan *Client)
	unregister = make(chan *Client)

	if err := initWebsocket(); err != nil {
		return err
	}

	router = http.NewServeMux()
	router.HandleFunc("/", handleWebsocket)

	server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Opts.Relay.Host, config.Opts.Relay.Port),
		Handler: router,
	}

	return nil
}

// Shutdown performs the graceful shutdown of the relay server using the
// provided context.
func Shutdown(ctx context.Context) error {
	var err error

	if server != nil {
		server.SetKeepAlivesEnabled(false)
		err = server.Shutdown(ctx)
		log.Info("shutdown relay server")
	}

	auditTrail.Close()

	log.Info("completed shutdown")
	return err
}

// Start spins up the relay server as a goroutine.
func Start() {
	if server == nil {
		panic("attempted to start relay server that has not been initialized")
	}

	go runRelay()

	go func() {
		log.Info("starting relay server")
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Err("closing relay server encountered an error", err)
		}
		log.Info("relay server closed")
	}()

	go runRetentionSweep()
}

// PruneAuditLogNow runs the audit log retention sweep once, without
// spinning up the relay's network listeners. Used by the CLI's standalone
// "clean" command.
func PruneAuditLogNow() error {
	if config.Opts == nil {
		panic("attempted to prune without a loaded config")
	}

	r, err := audit.Open(config.Opts.Relay.DBFile)
	if err != nil {
		return err
	}
	defer r.Close()

	cutoff := time.Now().Add(-time.Duration(config.Opts.Relay.ChannelExpiration) * time.Minute)
	return r.Prune(cutoff)
}

func runRelay() {
	for {
		select {
		case clnt := <-register:
			lockClients.Lock()
			clients[clnt] = struct{}{}
			LogInfo(clnt, "new client registered")
			lockClients.Unlock()

			clnt.OnConnect()

		case clnt := <-unregister:
			lockClients.Lock()
			if _, ok := clients[clnt]; ok {
				clnt.Close()
				delete(clients, clnt)
			}
			LogInfo(clnt, "client unregistered")
			lockClients.Unlock()
		}
	}
}

// runRetentionSweep periodically prunes audit log entries older than
// ChannelExpiration. It never touches the in-memory mailbox/nameplate
// registry - that state is freed only when its sides release, close or
// disconnect.
func runRetentionSweep() {
	if config.Opts == nil {
		return
	}

	if config.Opts.Relay.CleaningInterval == 0 {
		log.Warn("cleaning interval was too small! Check configuration")
		return
	}

	dur := time.Minute * time.Duration(config.Opts.Relay.CleaningInterval)
	expiry := time.Minute * time.Duration(config.Opts.Relay.ChannelExpiration)

	ticker := time.NewTicker(dur)
	for t := range ticker.C {
		if err := auditTrail.Prune(t.Add(-expiry)); err != nil {
			log.Err("failed to prune audit trail", err)
		}
	}
}
