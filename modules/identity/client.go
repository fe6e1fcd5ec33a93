// Package identity implements modules.IdentityProvider against an
// external Hive-compatible RPC node and witness-rank service. Signature
// verification and witness-rank bookkeeping are explicitly out of scope
// for this repository: this client only ever forwards a
// request and parses a response, it never touches a private key or
// implements a signature scheme itself.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/NebulousLabs/errors"

	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules"
)

// userAgent is sent with every outbound request so the remote service
// can tell coordinator traffic apart from other clients.
const userAgent = "storage-coordinator-identity/" + build.Version

// Client is the HTTP-backed modules.IdentityProvider. baseURL points at
// an operator-supplied verification service that fronts the Hive chain:
// POST {baseURL}/verify-signature and GET {baseURL}/witness-rank/{username}.
type Client struct {
	baseURL    string
	postingKey string
	httpClient *http.Client
}

// New returns a Client that calls baseURL for every operation.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetPostingKey attaches the operator's posting key to every outbound
// request, authenticating this coordinator to the verification service.
// Operators usually supply it via IDENTITY_POSTING_KEY.
func (c *Client) SetPostingKey(key string) {
	c.postingKey = key
}

// authorize stamps the shared headers onto an outbound request.
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.postingKey != "" {
		req.Header.Set("X-Posting-Key", c.postingKey)
	}
}

type verifySignatureRequest struct {
	Username  string `json:"username"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

type verifySignatureResponse struct {
	Valid bool `json:"valid"`
}

// VerifySignature delegates the actual cryptographic check to the
// external verification service; this client only marshals the request
// and interprets the response.
func (c *Client) VerifySignature(ctx context.Context, username, challenge, signature string) (bool, error) {
	body, err := json.Marshal(verifySignatureRequest{Username: username, Challenge: challenge, Signature: signature})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify-signature", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Extend(err, modules.ErrTransient)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("verify-signature: unexpected status %d", resp.StatusCode)
	}

	var out verifySignatureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

type witnessRankResponse struct {
	Rank int  `json:"rank"`
	OK   bool `json:"ok"`
}

// WitnessRank looks up username's current rank from the external
// witness-rank service.
func (c *Client) WitnessRank(ctx context.Context, username string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/witness-rank/"+username, nil)
	if err != nil {
		return 0, false, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, errors.Extend(err, modules.ErrTransient)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("witness-rank: unexpected status %d", resp.StatusCode)
	}

	var out witnessRankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, false, err
	}
	return out.Rank, out.OK, nil
}

// IsTopWitness reports whether username's rank is within the top topN.
func (c *Client) IsTopWitness(ctx context.Context, username string, topN int) (bool, error) {
	rank, ok, err := c.WitnessRank(ctx, username)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return rank <= topN, nil
}

var _ modules.IdentityProvider = (*Client)(nil)
