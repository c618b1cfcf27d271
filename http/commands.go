package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fwojciec/harvest"
)

// Ensure CommandSource implements harvest.CommandSource at compile time.
var _ harvest.CommandSource = (*CommandSource)(nil)

// CommandSource polls a URL for the latest control command.
// The endpoint answers {"signal":"pause"|"stop"|"resume"|"none"}; an
// empty body, an empty signal, or 204 means no new command.
type CommandSource struct {
	client *http.Client
	url    string
	apiKey string
}

// NewCommandSource creates a CommandSource polling url.
func NewCommandSource(url, apiKey string) *CommandSource {
	return &CommandSource{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    url,
		apiKey: apiKey,
	}
}

// Poll fetches the latest command.
func (s *CommandSource) Poll(ctx context.Context) (harvest.Signal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}
	if err := statusError(resp.StatusCode, s.url); err != nil {
		return "", err
	}

	var body struct {
		Signal string `json:"signal"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("decode command: %w", err)
	}
	if body.Signal == "" {
		return "", nil
	}
	return harvest.ParseSignal(body.Signal)
}
