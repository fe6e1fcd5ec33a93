package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/modules/jobqueue"
	"github.com/spknetwork/storage-coordinator/modules/payout"
	"github.com/spknetwork/storage-coordinator/sessions"
)

// Error is a type that is encoded as JSON and returned in an API response in
// the event of an error. Only the Message field is required.
type Error struct {
	Message string `json:"message"`
}

// Error implements the error interface for the Error type.
func (err Error) Error() string {
	return err.Message
}

// requireUserAgent is middleware that requires all requests to set a
// UserAgent that contains the specified string.
func requireUserAgent(h http.Handler, ua string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if ua != "" && !strings.Contains(req.UserAgent(), ua) {
			writeError(w, Error{"unrecognized client; set a storage-coordinator-* User-Agent"}, http.StatusBadRequest)
			return
		}
		h.ServeHTTP(w, req)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(req *http.Request) string {
	const prefix = "Bearer "
	h := req.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// API encapsulates the coordinator's component collaborators and
// exposes a http.Handler serving the operator surface.
type API struct {
	repo      modules.Repository
	sessions  *sessions.Manager
	scheduler *jobqueue.Scheduler
	payouts   *payout.Builder

	requiredUserAgent string
	Handler           http.Handler
}

// NewAPI wires an API from its collaborators. requiredUserAgent may be
// empty to disable the User-Agent check.
func NewAPI(requiredUserAgent string, repo modules.Repository, sm *sessions.Manager, scheduler *jobqueue.Scheduler, payouts *payout.Builder) *API {
	api := &API{
		repo:              repo,
		sessions:          sm,
		scheduler:         scheduler,
		payouts:           payouts,
		requiredUserAgent: requiredUserAgent,
	}
	api.Handler = api.initAPI()
	return api
}

// initAPI registers the operator routes.
func (api *API) initAPI() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(api.unrecognizedCallHandler)

	router.POST("/validator/login", api.loginHandler)
	router.POST("/validator/validate-session", api.requireSession(api.validateSessionHandler))
	router.GET("/validator/dashboard/:username", api.requireSession(api.dashboardHandler))
	router.GET("/validator/challenges", api.requireSession(api.challengesHandler))
	router.POST("/validator/payout/generate", api.requireSession(api.payoutGenerateHandler))
	router.GET("/validator/payout/reports/:id/export", api.requireSession(api.payoutExportHandler))

	router.GET("/nodes", api.nodesListHandler)

	router.POST("/encoding/jobs", api.jobsCreateHandler)
	router.GET("/encoding/jobs", api.jobsListHandler)
	router.POST("/encoding/agent/claim", api.agentClaimHandler)
	router.POST("/encoding/agent/progress", api.agentProgressHandler)
	router.POST("/encoding/agent/complete", api.agentCompleteHandler)
	router.POST("/encoding/agent/fail", api.agentFailHandler)
	router.POST("/encoding/agent/renew-lease", api.agentRenewLeaseHandler)
	router.GET("/encoding/queue/stats", api.queueStatsHandler)

	return requireUserAgent(router, api.requiredUserAgent)
}

// unrecognizedCallHandler handles calls to unknown pages (404).
func (api *API) unrecognizedCallHandler(w http.ResponseWriter, req *http.Request) {
	writeError(w, Error{"404 - no such endpoint"}, http.StatusNotFound)
}

// writeError writes an error to the API caller with the given response
// code.
func writeError(w http.ResponseWriter, err Error, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if json.NewEncoder(w).Encode(err) != nil {
		http.Error(w, "failed to encode error response", http.StatusInternalServerError)
	}
}

// writeTaxonomyError maps err to a status code via the outcome
// taxonomy and writes it.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case modules.IsNotFound(err):
		code = http.StatusNotFound
	case modules.IsConflict(err):
		code = http.StatusConflict
	case modules.IsInvalid(err):
		code = http.StatusBadRequest
	case modules.IsUnauthorized(err):
		code = http.StatusUnauthorized
	case modules.IsTransient(err):
		code = http.StatusServiceUnavailable
	}
	writeError(w, Error{err.Error()}, code)
}

// writeJSON writes the object to the ResponseWriter. If the encoding fails, an
// error is written instead. The Content-Type of the response header is set
// accordingly.
func writeJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if json.NewEncoder(w).Encode(obj) != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// writeSuccess writes the HTTP header with status 204 No Content to the
// ResponseWriter. writeSuccess should only be used to indicate that the
// requested action succeeded AND there is no data to return.
func writeSuccess(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
