// Package api fetches call-session credentials from the chat backend:
// STUN/TURN servers and a relay access token scoped to the current user.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wavechat/native/internal/domain"
)

// Ticket holds the per-session signaling credentials returned by the
// backend.
type Ticket struct {
	RelayToken string             `json:"relayToken"`
	ICEServers []domain.ICEServer `json:"iceServers"`
	ExpiresAt  int64              `json:"expiresAt"`
}

// Client fetches call tickets from the chat backend.
type Client struct {
	http *http.Client
}

// NewClient creates an API client.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 10 * time.Second}}
}

// FetchTicket calls the backend to obtain relay credentials and ICE server
// configuration for the authenticated user.
func (c *Client) FetchTicket(ticketURL, authToken string) (*Ticket, error) {
	req, err := http.NewRequest(http.MethodGet, ticketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build ticket request: %w", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ticket: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ticket response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket request failed: status %d: %s", resp.StatusCode, body)
	}

	var ticket Ticket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &ticket, nil
}
