package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/spknetwork/storage-coordinator/types"
)

type jobCreateRequest struct {
	Owner    string `json:"owner"`
	Permlink string `json:"permlink"`
	InputCID string `json:"inputCid"`
	IsShort  bool   `json:"isShort"`
}

// jobsCreateHandler implements POST /encoding/jobs.
func (api *API) jobsCreateHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body jobCreateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}

	job, err := api.scheduler.Enqueue(req.Context(), body.Owner, body.Permlink, body.InputCID, body.IsShort)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, job)
}

// jobsListHandler implements GET /encoding/jobs?owner=.
func (api *API) jobsListHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	owner := req.URL.Query().Get("owner")
	jobs, err := api.scheduler.ListJobs(req.Context(), owner)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, jobs)
}

type agentClaimRequest struct {
	EncoderID   string            `json:"encoderId"`
	EncoderType types.EncoderType `json:"encoderType"`
}

type agentClaimResponse struct {
	Job       *types.EncodingJob `json:"job,omitempty"`
	Signature string             `json:"signature,omitempty"`
}

// agentClaimHandler implements POST /encoding/agent/claim.
func (api *API) agentClaimHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body agentClaimRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}

	job, sig, ok, err := api.scheduler.Claim(req.Context(), body.EncoderID, body.EncoderType)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	if !ok {
		writeJSON(w, agentClaimResponse{})
		return
	}
	writeJSON(w, agentClaimResponse{Job: &job, Signature: sig})
}

type agentProgressRequest struct {
	JobID     uuid.UUID `json:"jobId"`
	EncoderID string    `json:"encoderId"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Signature string    `json:"signature"`
}

// agentProgressHandler implements POST /encoding/agent/progress.
func (api *API) agentProgressHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body agentProgressRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}
	if err := api.scheduler.Progress(req.Context(), body.JobID, body.EncoderID, body.Stage, body.Progress, body.Signature); err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeSuccess(w)
}

type agentCompleteRequest struct {
	JobID             uuid.UUID `json:"jobId"`
	EncoderID         string    `json:"encoderId"`
	OutputCID         string    `json:"outputCid"`
	QualitiesEncoded  []string  `json:"qualitiesEncoded"`
	ProcessingTimeSec float64   `json:"processingTimeSec"`
	OutputSizeBytes   *uint64   `json:"outputSizeBytes,omitempty"`
	Signature         string    `json:"signature"`
}

// agentCompleteHandler implements POST /encoding/agent/complete.
func (api *API) agentCompleteHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body agentCompleteRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}
	err := api.scheduler.Complete(req.Context(), body.JobID, body.EncoderID, body.OutputCID, body.QualitiesEncoded, body.ProcessingTimeSec, body.OutputSizeBytes, body.Signature)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeSuccess(w)
}

type agentFailRequest struct {
	JobID     uuid.UUID `json:"jobId"`
	EncoderID string    `json:"encoderId"`
	Error     string    `json:"error"`
	Retryable bool      `json:"retryable"`
	Signature string    `json:"signature"`
}

// agentFailHandler implements POST /encoding/agent/fail.
func (api *API) agentFailHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body agentFailRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}
	if err := api.scheduler.Fail(req.Context(), body.JobID, body.EncoderID, body.Error, body.Retryable, body.Signature); err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeSuccess(w)
}

type agentRenewLeaseRequest struct {
	JobID     uuid.UUID `json:"jobId"`
	EncoderID string    `json:"encoderId"`
	Signature string    `json:"signature"`
}

type agentRenewLeaseResponse struct {
	Job       types.EncodingJob `json:"job"`
	Signature string            `json:"signature"`
}

// agentRenewLeaseHandler implements POST /encoding/agent/renew-lease.
func (api *API) agentRenewLeaseHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body agentRenewLeaseRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, Error{err.Error()}, http.StatusBadRequest)
		return
	}
	job, sig, err := api.scheduler.RenewLease(req.Context(), body.JobID, body.EncoderID, body.Signature)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, agentRenewLeaseResponse{Job: job, Signature: sig})
}

// queueStatsHandler implements GET /encoding/queue/stats.
func (api *API) queueStatsHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	stats, err := api.scheduler.Stats(req.Context())
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, stats)
}
