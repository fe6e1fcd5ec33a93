package modules

import "context"

// ChallengeTimeout bounds how long the PoA engine waits for a response
// over the validator-node channel before treating the attempt as a
// timeout.
const ChallengeTimeout = 2 * 1000 // milliseconds, live mode default

// ChallengeRequest is the payload the PoA engine dispatches over the
// validator-node channel. The mixed field casing is the channel's wire
// format, not a style choice.
type ChallengeRequest struct {
	Type   string `json:"type"`
	Hash   string `json:"Hash"`
	CID    string `json:"CID"`
	Status string `json:"Status"`
	User   string `json:"User"`
}

// ChallengeResponse is what a storage node answers with. ProofHash is
// compared byte-for-byte against the engine's own expected digest.
type ChallengeResponse struct {
	ProofHash string `json:"proofHash"`
}

// ValidatorChannel dispatches a proof challenge to a storage node and
// waits for its response.
// RequestProof must respect ctx's deadline: the caller is responsible
// for bounding it to ChallengeTimeout.
type ValidatorChannel interface {
	RequestProof(ctx context.Context, req ChallengeRequest) (ChallengeResponse, error)
}
