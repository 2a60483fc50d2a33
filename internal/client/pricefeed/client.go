// Package pricefeed queries the external price-forecast service for a
// reference market price. The matching flow treats it as optional.
package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	BaseURL string

	HTTP *http.Client
}

type predictRequest struct {
	Commodity string `json:"commodity"`
	State     string `json:"state"`
	District  string `json:"district"`
	Market    string `json:"market"`
}

type predictResponse struct {
	PredictedPrice decimal.Decimal `json:"predicted_price"`
}

func (c *Client) Quote(ctx context.Context, crop string) (decimal.Decimal, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return decimal.Zero, errors.New("price feed base url is empty")
	}

	b, err := json.Marshal(predictRequest{
		Commodity: crop,
		State:     "average",
		District:  "average",
		Market:    "average",
	})
	if err != nil {
		return decimal.Zero, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/predict", bytes.NewReader(b))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("price feed http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pr predictResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return decimal.Zero, err
	}
	return pr.PredictedPrice, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 5 * time.Second}
}
