package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/persist"
)

// Error is the JSON envelope returned on every non-2xx loopback
// response, matching the coordinator's own API error shape so the
// desktop client UI can share one decoder for both.
type Error struct {
	Message string `json:"message"`
}

func (e Error) Error() string { return e.Message }

func writeError(w http.ResponseWriter, err error, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(Error{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func statusCodeFor(err error) int {
	switch {
	case modules.IsInvalid(err):
		return http.StatusBadRequest
	case modules.IsNotFound(err):
		return http.StatusNotFound
	case modules.IsUnauthorized(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Server is the desktop agent's loopback HTTP surface: status, config,
// pin management, and the challenge responder.
type Server struct {
	router      *httprouter.Router
	supervisor  *Supervisor
	daemon      modules.StorageDaemonClient
	responder   *ChallengeResponder
	earnings    *EarningsStore
	config      *ConfigStore
	defaultCfg  AgentConfig
	logger      *persist.Logger
	version     string
}

// NewServer wires a loopback Server from its component parts.
func NewServer(supervisor *Supervisor, daemon modules.StorageDaemonClient, responder *ChallengeResponder, earnings *EarningsStore, config *ConfigStore, defaultCfg AgentConfig, version string, logger *persist.Logger) *Server {
	s := &Server{
		supervisor: supervisor,
		daemon:     daemon,
		responder:  responder,
		earnings:   earnings,
		config:     config,
		defaultCfg: defaultCfg,
		version:    version,
		logger:     logger,
	}
	s.router = httprouter.New()
	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, fmt.Errorf("no such endpoint"), http.StatusNotFound)
	})
	s.router.GET("/api/status", s.handleStatus)
	s.router.GET("/api/config", s.handleGetConfig)
	s.router.POST("/api/config", s.handlePostConfig)
	s.router.POST("/api/pin", s.handlePin)
	s.router.POST("/api/unpin", s.handleUnpin)
	s.router.GET("/api/pins", s.handlePins)
	s.router.POST("/api/challenge", s.handleChallenge)
	return s
}

// Listen binds the loopback listener starting at port, advancing by +1
// on EADDRINUSE. The caller is responsible for serving handler on the
// returned listener and closing it on shutdown.
func Listen(port int, handler http.Handler, logger *persist.Logger) (net.Listener, int, error) {
	for {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if logger != nil {
				logger.Println("agent: loopback API listening on", addr)
			}
			return ln, port, nil
		}
		if !isAddrInUse(err) {
			return nil, 0, err
		}
		port++
	}
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// Handler returns the Server's http.Handler for use with Listen/Serve.
func (s *Server) Handler() http.Handler { return s.router }

type statusResponse struct {
	Running      bool          `json:"running"`
	PeerID       string        `json:"peerId"`
	Stats        statsBlock    `json:"stats"`
	HiveUsername *string       `json:"hiveUsername"`
	Earnings     earningsBlock `json:"earnings"`
	Version      string        `json:"version"`
}

type statsBlock struct {
	RepoSize     uint64 `json:"repoSize"`
	NumObjects   uint64 `json:"numObjects"`
	BandwidthIn  uint64 `json:"bandwidthIn"`
	BandwidthOut uint64 `json:"bandwidthOut"`
}

type earningsBlock struct {
	TotalHBD          float64 `json:"totalHbd"`
	ChallengesPassed  int     `json:"challengesPassed"`
	ConsecutivePasses int     `json:"consecutivePasses"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	running, _ := s.supervisor.Status()

	var peerID string
	var stats statsBlock
	if running {
		if id, err := s.daemon.PeerID(ctx); err == nil {
			peerID = id
		}
		if st, err := s.daemon.Stat(ctx); err == nil {
			stats = statsBlock{RepoSize: st.RepoSize, NumObjects: st.NumObjects, BandwidthIn: st.BandwidthIn, BandwidthOut: st.BandwidthOut}
		}
	}

	cfg, err := s.config.Load(s.defaultCfg)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	earnings, err := s.earnings.Load()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, statusResponse{
		Running:      running,
		PeerID:       peerID,
		Stats:        stats,
		HiveUsername: cfg.HiveUsername,
		Earnings: earningsBlock{
			TotalHBD:          earnings.TotalHBD,
			ChallengesPassed:  earnings.ChallengesPassed,
			ConsecutivePasses: earnings.ConsecutivePasses,
		},
		Version: s.version,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cfg, err := s.config.Load(s.defaultCfg)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, cfg)
}

type configPatch struct {
	HiveUsername *string `json:"hiveUsername"`
	AutoStart    *bool   `json:"autoStart"`
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var patch configPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	cfg, err := s.config.Load(s.defaultCfg)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if patch.HiveUsername != nil {
		cfg.HiveUsername = patch.HiveUsername
	}
	if patch.AutoStart != nil {
		cfg.AutoStart = *patch.AutoStart
	}
	if err := s.config.Save(cfg); err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, cfg)
}

type cidRequest struct {
	CID string `json:"cid"`
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req cidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if err := s.daemon.Pin(r.Context(), req.CID); err != nil {
		writeError(w, err, statusCodeFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req cidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if err := s.daemon.Unpin(r.Context(), req.CID); err != nil {
		writeError(w, err, statusCodeFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pins, err := s.daemon.Pins(r.Context())
	if err != nil {
		writeError(w, err, statusCodeFor(err))
		return
	}
	if pins == nil {
		pins = []string{}
	}
	writeJSON(w, pins)
}

type challengeRequest struct {
	CID         string `json:"cid"`
	BlockIndex  int    `json:"blockIndex"`
	Salt        string `json:"salt"`
	ValidatorID string `json:"validatorId"`
}

type challengeResponseBody struct {
	Success      bool   `json:"success"`
	Proof        string `json:"proof"`
	BlockCID     string `json:"blockCid"`
	ResponseTime int64  `json:"responseTime"`
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	resp, err := s.responder.Respond(r.Context(), req.CID, req.BlockIndex, req.Salt, req.ValidatorID)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, challengeResponseBody{
		Success:      resp.Success,
		Proof:        resp.Proof,
		BlockCID:     resp.BlockCID,
		ResponseTime: resp.ResponseTime.Milliseconds(),
	})
}
