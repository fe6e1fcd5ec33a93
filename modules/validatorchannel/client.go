// Package validatorchannel implements modules.ValidatorChannel over
// HTTP: it POSTs a challenge to a storage node's channel endpoint and
// decodes its response. Transport details (the node's actual network
// protocol) are the node's own concern; this package only knows the
// JSON request/response shape of the channel.
package validatorchannel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/NebulousLabs/errors"

	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules"
)

const userAgent = "storage-coordinator-validatorchannel/" + build.Version

// Client is the HTTP-backed modules.ValidatorChannel. baseURL is
// typically supplied via VALIDATOR_CHANNEL_URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client that posts every challenge to baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// RequestProof posts req to the channel and decodes the node's answer.
// The deadline is entirely owned by ctx; callers apply
// modules.ChallengeTimeout themselves.
func (c *Client) RequestProof(ctx context.Context, req modules.ChallengeRequest) (modules.ChallengeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return modules.ChallengeResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return modules.ChallengeResponse{}, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return modules.ChallengeResponse{}, errors.Extend(ctx.Err(), modules.ErrTransient)
		}
		return modules.ChallengeResponse{}, errors.Extend(err, modules.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return modules.ChallengeResponse{}, errors.Extend(errors.New("validator channel returned an error status"), modules.ErrTransient)
	}

	var out modules.ChallengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return modules.ChallengeResponse{}, err
	}
	return out, nil
}

var _ modules.ValidatorChannel = (*Client)(nil)
