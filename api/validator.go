package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/spknetwork/storage-coordinator/types"
)

type sessionContextKey struct{}

// requireSession is middleware enforcing bearer-token auth: a
// valid, non-expired session whose holder is still a top-150 witness.
func (api *API) requireSession(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		token := bearerToken(req)
		if token == "" {
			writeError(w, Error{"missing bearer token"}, http.StatusUnauthorized)
			return
		}
		session, err := api.sessions.Validate(req.Context(), token)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		ctx := context.WithValue(req.Context(), sessionContextKey{}, session)
		h(w, req.WithContext(ctx), ps)
	}
}

func sessionFromContext(ctx context.Context) types.Session {
	s, _ := ctx.Value(sessionContextKey{}).(types.Session)
	return s
}

type loginRequest struct {
	Username  string `json:"username"`
	Signature string `json:"signature"`
	Challenge string `json:"challenge"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// loginHandler implements POST /validator/login.
func (api *API) loginHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}

	token, err := api.sessions.Login(req.Context(), body.Username, body.Signature, body.Challenge)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, loginResponse{Token: token})
}

// validateSessionHandler implements POST /validator/validate-session.
// Reaching this handler at all means requireSession already validated
// the token; it only needs to echo back the session it found.
func (api *API) validateSessionHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	writeJSON(w, sessionFromContext(req.Context()))
}

type dashboardResponse struct {
	Username         string             `json:"username"`
	TotalChallenges  int                `json:"totalChallenges"`
	SuccessCount     int                `json:"successCount"`
	FailCount        int                `json:"failCount"`
	LatencyP50Ms     int64              `json:"latencyP50Ms"`
	LatencyP95Ms     int64              `json:"latencyP95Ms"`
	HourlyActivity   map[string]int     `json:"hourlyActivity"`
	RecentChallenges []types.PoAChallenge `json:"recentChallenges"`
}

// dashboardLimit bounds how many of a validator's recent challenges
// the dashboard aggregates over.
const dashboardLimit = 1000

// dashboardHandler implements GET /validator/dashboard/{username}: stats
// plus latency percentiles and hourly activity, self-access only.
func (api *API) dashboardHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	username := ps.ByName("username")
	session := sessionFromContext(req.Context())
	if session.Username != username {
		writeError(w, Error{"cannot view another validator's dashboard"}, http.StatusUnauthorized)
		return
	}

	validator, err := api.repo.GetValidator(req.Context(), username)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	challenges, err := api.repo.ListChallenges(req.Context(), validator.ID, dashboardLimit)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	resp := dashboardResponse{
		Username:         username,
		HourlyActivity:   map[string]int{},
		RecentChallenges: challenges,
	}
	var latencies []int64
	for _, c := range challenges {
		resp.TotalChallenges++
		switch c.Result {
		case types.ChallengeSuccess:
			resp.SuccessCount++
		case types.ChallengeFail, types.ChallengeTimeout:
			resp.FailCount++
		}
		if c.LatencyMs != nil {
			latencies = append(latencies, *c.LatencyMs)
		}
		bucket := c.CreatedAt.Truncate(time.Hour).Format(time.RFC3339)
		resp.HourlyActivity[bucket]++
	}
	resp.LatencyP50Ms = percentile(latencies, 50)
	resp.LatencyP95Ms = percentile(latencies, 95)

	writeJSON(w, resp)
}

// percentile returns the p-th percentile (0-100) of values using
// nearest-rank interpolation; values need not be pre-sorted.
func percentile(values []int64, p int) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (p*len(sorted)+99)/100 - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// challengesLimit is the default page size for GET /validator/challenges.
const challengesLimit = 100

// challengesHandler implements GET /validator/challenges?limit=.
func (api *API) challengesHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	session := sessionFromContext(req.Context())
	validator, err := api.repo.GetValidator(req.Context(), session.Username)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	limit := challengesLimit
	if q := req.URL.Query().Get("limit"); q != "" {
		if n, err := parsePositiveInt(q); err == nil {
			limit = n
		}
	}

	challenges, err := api.repo.ListChallenges(req.Context(), validator.ID, limit)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, challenges)
}

func parsePositiveInt(s string) (int, error) {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, Error{"not a positive integer"}
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

type payoutGenerateRequest struct {
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// payoutGenerateHandler implements POST /validator/payout/generate.
func (api *API) payoutGenerateHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body payoutGenerateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}

	summary, err := api.payouts.Generate(req.Context(), body.PeriodStart, body.PeriodEnd)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, summary)
}

// payoutExportHandler implements GET /validator/payout/reports/{id}/export.
func (api *API) payoutExportHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	id, err := uuid.Parse(ps.ByName("id"))
	if err != nil {
		writeError(w, Error{"malformed report id"}, http.StatusBadRequest)
		return
	}

	session := sessionFromContext(req.Context())
	export, err := api.payouts.Export(req.Context(), id, session.Username)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, export)
}
