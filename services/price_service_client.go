// coin-offers-system/services/price_service_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TokenDayPrice is the price service's answer for one token on one UTC day.
type TokenDayPrice struct {
	StartDayPrice float64 `json:"start_day_price"`
	EndDayPrice   float64 `json:"end_day_price"`
}

// PriceSource is the contract the offer lifecycle needs from the external
// price feed. found=false is the absence signal: the day's candle is not
// available (yet), which is not an error.
type PriceSource interface {
	GetPrice(ctx context.Context, token string, day int64) (price TokenDayPrice, found bool, err error)
}

// PriceServiceClient calls the price service over HTTP.
type PriceServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPriceServiceClient(baseURL, serviceToken string) *PriceServiceClient {
	return &PriceServiceClient{
		BaseURL: baseURL,
		Token:   serviceToken,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetPrice fetches the start-of-day and end-of-day price for a token.
// A 404 means the price service has no candle for that token/day.
func (c *PriceServiceClient) GetPrice(ctx context.Context, token string, day int64) (TokenDayPrice, bool, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return TokenDayPrice{}, false, fmt.Errorf("invalid price service URL %q: %w", c.BaseURL, err)
	}

	endpoint := base.JoinPath("/api/v1/prices", token)
	q := endpoint.Query()
	q.Set("day", strconv.FormatInt(day, 10))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint.String(), nil)
	if err != nil {
		return TokenDayPrice{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return TokenDayPrice{}, false, fmt.Errorf("price service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return TokenDayPrice{}, false, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("PriceService returned %d for %s day=%d: %s", resp.StatusCode, token, day, string(body))
		return TokenDayPrice{}, false, fmt.Errorf("price service non-200 response: %d", resp.StatusCode)
	}

	var out TokenDayPrice
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TokenDayPrice{}, false, fmt.Errorf("failed to decode price service response: %w", err)
	}

	if out.StartDayPrice <= 0 {
		// Cannot compute a fractional change against a zero open.
		return TokenDayPrice{}, false, fmt.Errorf("price service returned non-positive start price %f for %s day=%d", out.StartDayPrice, token, day)
	}

	return out, true, nil
}
