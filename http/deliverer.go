package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fwojciec/harvest"
)

// DefaultDeliverTimeout bounds one ingest request.
const DefaultDeliverTimeout = 30 * time.Second

// Ensure Deliverer implements harvest.Deliverer at compile time.
var _ harvest.Deliverer = (*Deliverer)(nil)

// Deliverer posts items to an ingest API as JSON.
//
// A 2xx response is decoded as an ingest result. 4xx responses reject the
// item (failed Outcome, no error). 429 and 5xx responses and transport
// failures return an error; EUNAVAILABLE marks the retryable ones.
type Deliverer struct {
	client   *http.Client
	url      string
	apiKey   string
	source   string
	currency string
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) DelivererOption {
	return func(d *Deliverer) {
		d.apiKey = key
	}
}

// WithCurrency sets the currency code sent with each item.
func WithCurrency(code string) DelivererOption {
	return func(d *Deliverer) {
		d.currency = code
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) DelivererOption {
	return func(d *Deliverer) {
		d.client = c
	}
}

// NewDeliverer creates a Deliverer posting items of source to url.
func NewDeliverer(url, source string, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		client: &http.Client{Timeout: DefaultDeliverTimeout},
		url:    url,
		source: source,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ingestRequest is the JSON body of an ingest call.
type ingestRequest struct {
	Source   string        `json:"source"`
	Currency string        `json:"currency,omitempty"`
	Item     *harvest.Item `json:"item"`
}

// ingestResponse is the JSON result of an ingest call.
type ingestResponse struct {
	Success      bool   `json:"success"`
	PhotosAdded  int    `json:"photosAdded"`
	PhotosFailed int    `json:"photosFailed"`
	Error        string `json:"error"`
}

// Deliver posts item and converts the response into an Outcome.
func (d *Deliverer) Deliver(ctx context.Context, item *harvest.Item) (harvest.Outcome, error) {
	body, err := json.Marshal(ingestRequest{Source: d.source, Currency: d.currency, Item: item})
	if err != nil {
		return harvest.Outcome{}, fmt.Errorf("encode item %s: %w", item.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return harvest.Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return harvest.Outcome{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return harvest.Outcome{}, err
	}

	var res ingestResponse
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return harvest.Outcome{}, harvest.Errorf(harvest.EUNAVAILABLE, "ingest HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		_ = json.Unmarshal(data, &res)
		msg := res.Error
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return harvest.Outcome{Err: msg}, nil
	case resp.StatusCode >= 300:
		return harvest.Outcome{}, fmt.Errorf("ingest HTTP %d", resp.StatusCode)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return harvest.Outcome{Success: true}, nil
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return harvest.Outcome{}, fmt.Errorf("decode ingest response: %w", err)
	}
	return harvest.Outcome{
		Success:   res.Success,
		Delivered: res.PhotosAdded,
		Failed:    res.PhotosFailed,
		Err:       res.Error,
	}, nil
}
