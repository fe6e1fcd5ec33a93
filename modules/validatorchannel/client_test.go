package validatorchannel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spknetwork/storage-coordinator/modules"
)

func TestRequestProofEchoesHash(t *testing.T) {
	var gotReq modules.ChallengeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(modules.ChallengeResponse{ProofHash: gotReq.Hash})
	}))
	defer srv.Close()

	c := New(srv.URL)
	req := modules.ChallengeRequest{Type: "RequestProof", Hash: "deadbeef", CID: "Qm1", Status: "Pending", User: "alice"}
	resp, err := c.RequestProof(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ProofHash != "deadbeef" {
		t.Errorf("proofHash = %q, want deadbeef", resp.ProofHash)
	}
	if gotReq.Type != "RequestProof" || gotReq.User != "alice" {
		t.Errorf("request not forwarded correctly: %+v", gotReq)
	}
}

func TestRequestProofErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.RequestProof(context.Background(), modules.ChallengeRequest{})
	if !modules.IsTransient(err) {
		t.Errorf("expected a transient error, got %v", err)
	}
}
