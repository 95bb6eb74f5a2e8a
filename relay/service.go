package relay

import (
	"sync"

	"github.com/rotunda-labs/wormhole-relay/audit"
	"github.com/rotunda-labs/wormhole-relay/config"
	"github.com/rotunda-labs/wormhole-relay/log"
	"github.com/rotunda-labs/wormhole-relay/wire"
)

// Service holds the per-app registries and the welcome message handed to
// every newly connected client.
type Service struct {
	Welcome wire.WelcomeInfo

	mu   sync.Mutex
	Apps map[string]*Application
}

// NewService initializes the relay service. The audit trail is opened
// separately by Initialize, since its lifetime spans restarts of the
// service's in-memory state.
func NewService() (*Service, error) {
	srv := &Service{
		Apps: make(map[string]*Application),
	}

	if config.Opts.Relay.WelcomeMOTD != "" {
		srv.Welcome.MOTD = &config.Opts.Relay.WelcomeMOTD
	}
	if config.Opts.Relay.WelcomeError != "" {
		srv.Welcome.Error = &config.Opts.Relay.WelcomeError
	}

	return srv, nil
}

// GetApp finds the application registered for id, lazily creating it on
// first use - there's no concept of a pre-registered app-id.
func (s *Service) GetApp(id string) *Application {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.Apps[id]
	if !ok {
		log.Infof("creating new application container for %s", id)
		app = NewApplication(id)
		s.Apps[id] = app
	}
	return app
}

// auditTrail is the process-wide lifecycle recorder, opened by Initialize
// and written to by Client's Handle* methods. A nil *audit.Recorder (before
// Initialize runs, e.g. in tests) is safe to call Record/Close on.
var auditTrail *audit.Recorder
