// Package daemonclient implements modules.StorageDaemonClient, a thin
// HTTP client over a co-resident content-addressed storage daemon. The
// daemon itself is a black box; this package only knows its HTTP
// surface, modeled on the add/cat/refs/block verbs a content-addressing
// daemon commonly exposes.
package daemonclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/NebulousLabs/errors"

	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules"
)

const userAgent = "storage-coordinator-daemonclient/" + build.Version

// Client is the HTTP-backed modules.StorageDaemonClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client talking to the daemon's API at baseURL (e.g.
// "http://127.0.0.1:5001").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// do issues a request with no body, applying the shared error-taxonomy
// mapping (404 -> ErrNotFound, 5xx/transport error -> ErrTransient) every
// read operation needs.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Extend(ctx.Err(), modules.ErrTransient)
		}
		return nil, errors.Extend(err, modules.ErrTransient)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, modules.ErrNotFound
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, errors.Extend(fmt.Errorf("daemon returned %d", resp.StatusCode), modules.ErrTransient)
	}
	return resp, nil
}

// Add stores data on the daemon and returns its CID.
func (c *Client) Add(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "blob")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v0/add", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Extend(err, modules.ErrTransient)
	}
	defer resp.Body.Close()

	var out struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Hash, nil
}

// Cat returns the complete bytes behind cid.
func (c *Client) Cat(ctx context.Context, cid string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v0/cat?arg="+cid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ioutil.ReadAll(resp.Body)
}

// Refs returns the ordered block CIDs behind cid. The call is bounded by
// modules.DaemonRefsDeadline on top of any deadline ctx already carries.
func (c *Client) Refs(ctx context.Context, cid string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, modules.DaemonRefsDeadline)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/v0/refs?arg="+cid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	refs := []string{}
	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var line struct {
			Ref string `json:"Ref"`
		}
		if err := dec.Decode(&line); err != nil {
			return nil, err
		}
		refs = append(refs, line.Ref)
	}
	return refs, nil
}

// Block returns the bytes behind a single block CID.
func (c *Client) Block(ctx context.Context, blockCid string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, modules.DaemonBlockDeadline)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/v0/block/get?arg="+blockCid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ioutil.ReadAll(resp.Body)
}

// Pin asks the daemon to keep cid and everything under it out of
// garbage collection.
func (c *Client) Pin(ctx context.Context, cid string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v0/pin/add?arg="+cid)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Unpin releases a previous pin on cid. Unpinning a CID the daemon
// never pinned surfaces the daemon's own error.
func (c *Client) Unpin(ctx context.Context, cid string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v0/pin/rm?arg="+cid)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Pins lists every CID the daemon currently pins recursively.
func (c *Client) Pins(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v0/pin/ls?type=recursive")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Keys map[string]struct {
			Type string `json:"Type"`
		} `json:"Keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	pins := make([]string, 0, len(out.Keys))
	for cid := range out.Keys {
		pins = append(pins, cid)
	}
	return pins, nil
}

// Stat reports the daemon's repository and bandwidth counters.
func (c *Client) Stat(ctx context.Context) (modules.DaemonStat, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v0/stats/repo")
	if err != nil {
		return modules.DaemonStat{}, err
	}
	defer resp.Body.Close()

	var out struct {
		RepoSize   uint64 `json:"RepoSize"`
		NumObjects uint64 `json:"NumObjects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return modules.DaemonStat{}, err
	}

	bwResp, err := c.do(ctx, http.MethodGet, "/api/v0/stats/bw")
	if err != nil {
		return modules.DaemonStat{RepoSize: out.RepoSize, NumObjects: out.NumObjects}, nil
	}
	defer bwResp.Body.Close()
	var bw struct {
		TotalIn  uint64 `json:"TotalIn"`
		TotalOut uint64 `json:"TotalOut"`
	}
	if err := json.NewDecoder(bwResp.Body).Decode(&bw); err != nil {
		return modules.DaemonStat{RepoSize: out.RepoSize, NumObjects: out.NumObjects}, nil
	}
	return modules.DaemonStat{
		RepoSize:     out.RepoSize,
		NumObjects:   out.NumObjects,
		BandwidthIn:  bw.TotalIn,
		BandwidthOut: bw.TotalOut,
	}, nil
}

// IsOnline reports whether the daemon currently answers requests.
func (c *Client) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/api/v0/id")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// PeerID returns the daemon's network identity.
func (c *Client) PeerID(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v0/id")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ID string `json:"ID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

var _ modules.StorageDaemonClient = (*Client)(nil)
