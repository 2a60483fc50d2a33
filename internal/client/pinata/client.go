// Package pinata is a minimal client for Pinata's pinning API, the
// content-addressed store behind contract artifacts. Pinning the same bytes
// twice returns the same CID, so duplicate publish attempts are harmless.
package pinata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	GatewayURL string
	JWT        string

	HTTP *http.Client
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinJSON uploads content as a pinned JSON file and returns the CID plus a
// gateway URL. An empty JWT is a valid configuration for local setups; the
// call fails cleanly and the caller records the failure.
func (c *Client) PinJSON(ctx context.Context, name string, keyvalues map[string]string, content []byte) (string, string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return "", "", errors.New("pinata base url is empty")
	}
	jwt := strings.TrimSpace(c.JWT)
	if jwt == "" {
		return "", "", errors.New("pinata jwt is not configured")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "contract.json")
	if err != nil {
		return "", "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", "", err
	}

	meta := map[string]any{"name": name}
	if len(keyvalues) > 0 {
		meta["keyvalues"] = keyvalues
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", "", err
	}
	if err := form.WriteField("pinataMetadata", string(metaJSON)); err != nil {
		return "", "", err
	}
	if err := form.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+jwt)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("pinata upload http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var pr pinResponse
	if err := json.Unmarshal(b, &pr); err != nil {
		return "", "", err
	}
	cid := strings.TrimSpace(pr.IpfsHash)
	if cid == "" {
		return "", "", errors.New("pinata response missing IpfsHash")
	}
	return cid, c.gatewayFor(cid), nil
}

func (c *Client) gatewayFor(cid string) string {
	gateway := strings.TrimRight(strings.TrimSpace(c.GatewayURL), "/")
	if gateway == "" {
		gateway = "https://gateway.pinata.cloud"
	}
	return gateway + "/ipfs/" + cid
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}
