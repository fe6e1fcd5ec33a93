package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/modules/jobqueue"
	"github.com/spknetwork/storage-coordinator/modules/payout"
	"github.com/spknetwork/storage-coordinator/sessions"
)

// A Server binds the operator HTTP API to a listener and
// serves it until closed.
type Server struct {
	api      *API
	sessions *sessions.Manager

	httpServer *http.Server
	listener   net.Listener
}

// NewServer binds addr and wires an operator API server from its
// collaborators.
func NewServer(addr, requiredUserAgent string, repo modules.Repository, sm *sessions.Manager, scheduler *jobqueue.Scheduler, payouts *payout.Builder) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	a := NewAPI(requiredUserAgent, repo, sm, scheduler, payouts)
	srv := &Server{
		api:      a,
		sessions: sm,
		listener: l,
		httpServer: &http.Server{
			Handler: a.Handler,
		},
	}
	return srv, nil
}

// Serve listens for and handles API calls. It is a blocking function
// that returns once the listener is closed.
func (srv *Server) Serve() error {
	err := srv.httpServer.Serve(srv.listener)
	if err != nil && !strings.Contains(err.Error(), "use of closed network connection") && err != http.ErrServerClosed {
		return fmt.Errorf("serve err: %v", err)
	}
	return nil
}

// Close closes the Server's listener, causing Serve to return, and
// stops the session manager's background sweep.
func (srv *Server) Close() error {
	err := srv.listener.Close()
	if sessErr := srv.sessions.Close(); sessErr != nil && err == nil {
		err = sessErr
	}
	return err
}
