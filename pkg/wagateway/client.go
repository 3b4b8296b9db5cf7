package wagateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wacast/pkg/wagateway/types"

	"github.com/sony/gobreaker"
)

// Client talks to a WAHA-style WhatsApp HTTP gateway. Send operations go
// through a circuit breaker so a dead gateway fails fast instead of
// stalling every dispatch pass on timeouts.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(config types.ClientConfig) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "wagateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (c *Client) SendText(ctx context.Context, session, chatID, text string, opts *types.SendOptions) (*types.SendMessageResponse, error) {
	req := types.SendMessageRequest{
		Session: session,
		ChatID:  chatID,
		Text:    text,
	}
	if opts != nil {
		req.MessageID = opts.MessageID
		req.QuotedID = opts.QuotedID
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.postJSON(ctx, "/api/sendText", req)
	})
	if err != nil {
		return nil, fmt.Errorf("send text failed: %w", err)
	}
	return result.(*types.SendMessageResponse), nil
}

func (c *Client) MarkSeen(ctx context.Context, session, chatID string, messageIDs []string) error {
	req := types.SeenRequest{
		Session:    session,
		ChatID:     chatID,
		MessageIDs: messageIDs,
	}
	if _, err := c.postJSON(ctx, "/api/sendSeen", req); err != nil {
		return fmt.Errorf("mark seen failed: %w", err)
	}
	return nil
}

func (c *Client) SessionStatus(ctx context.Context, session string) (*types.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/sessions/%s", c.baseURL, session), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get session status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var s types.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return &s, nil
}

func (c *Client) StartSession(ctx context.Context, session string) error {
	return c.sessionAction(ctx, session, "start")
}

func (c *Client) StopSession(ctx context.Context, session string) error {
	return c.sessionAction(ctx, session, "stop")
}

func (c *Client) sessionAction(ctx context.Context, session, action string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/%s", c.baseURL, session, action), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s session: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.apiError(resp)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) (*types.SendMessageResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.apiError(resp)
	}

	var result types.SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr types.ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Error != "" || apiErr.Message != "") {
		return fmt.Errorf("gateway error (status %d): %s%s", resp.StatusCode, apiErr.Error, apiErr.Message)
	}
	return fmt.Errorf("gateway error (status %d)", resp.StatusCode)
}
