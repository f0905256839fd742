package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"rapidride/internal/observability"
)

// FareQuote is the estimation service's fare answer.
type FareQuote struct {
	Fare       float64 `json:"fare"`
	DistanceKm float64 `json:"distance_km"`
	Currency   string  `json:"currency"`
}

// ETAPrediction is the estimation service's ETA answer.
type ETAPrediction struct {
	ETASeconds int     `json:"eta_seconds"`
	Confidence float64 `json:"confidence"`
}

// Address is a reverse-geocoding answer.
type Address struct {
	City             string `json:"city,omitempty"`
	Locality         string `json:"locality,omitempty"`
	State            string `json:"state,omitempty"`
	Country          string `json:"country,omitempty"`
	PostalCode       string `json:"postal_code,omitempty"`
	FormattedAddress string `json:"formatted_address"`
	Fallback         bool   `json:"fallback,omitempty"`
}

// Health is the estimation service's health answer.
type Health struct {
	Status         string `json:"status"`
	ModelLoaded    bool   `json:"model_loaded"`
	QueueConnected bool   `json:"queue_connected"`
	RedisConnected bool   `json:"redis_connected"`
	Version        string `json:"version,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Service is the remote half of an estimate.
type Service interface {
	CalculateFare(ctx context.Context, req Request) (*FareQuote, error)
	PredictETA(ctx context.Context, req Request) (*ETAPrediction, error)
}

// Client talks to the fare/ETA/geocoding HTTP service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new Client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ Service = (*Client)(nil)

type tripPayload struct {
	Origin       Point   `json:"origin"`
	Destination  Point   `json:"destination"`
	Timestamp    string  `json:"timestamp"`
	TrafficLevel float64 `json:"traffic_level"`
}

func newTripPayload(req Request) tripPayload {
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	return tripPayload{
		Origin:       req.Pickup,
		Destination:  req.Destination,
		Timestamp:    at.UTC().Format(time.RFC3339),
		TrafficLevel: req.traffic(),
	}
}

// CalculateFare calls POST /fare/calc.
func (c *Client) CalculateFare(ctx context.Context, req Request) (*FareQuote, error) {
	var out FareQuote
	if err := c.post(ctx, "fare", "/fare/calc", newTripPayload(req), &out); err != nil {
		return nil, err
	}
	if out.Currency == "" {
		out.Currency = Currency
	}
	return &out, nil
}

// PredictETA calls POST /predict/eta.
func (c *Client) PredictETA(ctx context.Context, req Request) (*ETAPrediction, error) {
	var out ETAPrediction
	if err := c.post(ctx, "eta", "/predict/eta", newTripPayload(req), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReverseGeocode calls GET /geo/reverse. It never fails: on error the
// address is the coordinates themselves, flagged as a fallback.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) Address {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	var out Address
	if err := c.get(ctx, "geocode", "/geo/reverse?"+q.Encode(), &out); err != nil {
		return Address{
			FormattedAddress: fmt.Sprintf("Location: %v, %v", lat, lon),
			Fallback:         true,
		}
	}
	return out
}

// Health calls GET /health. It never fails.
func (c *Client) Health(ctx context.Context) Health {
	var out Health
	if err := c.get(ctx, "health", "/health", &out); err != nil {
		return Health{Status: "unavailable", Error: err.Error()}
	}
	return out
}

func (c *Client) post(ctx context.Context, call, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(call, req, out)
}

func (c *Client) get(ctx context.Context, call, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(call, req, out)
}

func (c *Client) do(call string, req *http.Request, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		observability.EstimatorCallDuration.WithLabelValues(call, outcome).Observe(time.Since(start).Seconds())
	}()

	seg := newrelic.StartExternalSegment(newrelic.FromContext(req.Context()), req)
	resp, err := c.http.Do(req)
	seg.Response = resp
	seg.End()
	if err != nil {
		return fmt.Errorf("%s request: %w", call, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", call, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", call, err)
	}
	return nil
}
