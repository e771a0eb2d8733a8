package pactlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pactline HTTP API client.
type Client struct {
	BaseURL     string
	PactID      string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, pactID string) *Client {
	return &Client{
		BaseURL: baseURL,
		PactID:  pactID,
		Timeout: 10 * time.Second,
	}
}

// Operation represents a dual-approval gate operation.
type Operation struct {
	ID        int64    `json:"id"`
	PactID    string   `json:"pact_id"`
	Proposer  string   `json:"proposer"`
	Target    string   `json:"target"`
	Value     int64    `json:"value"`
	Payload   string   `json:"payload,omitempty"`
	Approvals []string `json:"approvals"`
	Executed  bool     `json:"executed"`
}

// Treasury represents treasury totals.
type Treasury struct {
	PactID           string `json:"pact_id"`
	Balance          int64  `json:"balance"`
	TotalDeposits    int64  `json:"total_deposits"`
	TotalWithdrawals int64  `json:"total_withdrawals"`
}

// Task represents the API task model (partial).
type Task struct {
	ID            int64   `json:"id"`
	Creator       string  `json:"creator"`
	Assignee      *string `json:"assignee,omitempty"`
	Title         string  `json:"title"`
	Status        string  `json:"status"`
	PaymentAmount int64   `json:"payment_amount"`
}

// Handshake represents an activated (or half-open) mutual acknowledgment.
type Handshake struct {
	Hash      string `json:"hash"`
	PartyLow  string `json:"party_low"`
	PartyHigh string `json:"party_high"`
	Active    bool   `json:"active"`
}

// Proposal represents a governance proposal (partial).
type Proposal struct {
	ID           int64  `json:"id"`
	Proposer     string `json:"proposer"`
	Description  string `json:"description"`
	ForVotes     int64  `json:"for_votes"`
	AgainstVotes int64  `json:"against_votes"`
	EndTime      string `json:"end_time"`
	Executed     bool   `json:"executed"`
	Cancelled    bool   `json:"cancelled"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Deposit pays into the pact treasury.
func (c *Client) Deposit(ctx context.Context, amount int64) error {
	body := map[string]any{"amount": amount}
	return c.do(ctx, http.MethodPost, c.pactPath("treasury/deposits"), body, nil)
}

// Treasury returns the current treasury totals.
func (c *Client) Treasury(ctx context.Context) (Treasury, error) {
	var resp Treasury
	err := c.do(ctx, http.MethodGet, c.pactPath("treasury"), nil, &resp)
	return resp, err
}

// ProposeOperation opens a gate operation.
func (c *Client) ProposeOperation(ctx context.Context, target string, value int64, payloadJSON string) (Operation, error) {
	body := map[string]any{
		"target":  target,
		"value":   value,
		"payload": payloadJSON,
	}
	var resp Operation
	err := c.do(ctx, http.MethodPost, c.pactPath("operations"), body, &resp)
	return resp, err
}

// ApproveOperation records the caller's approval.
func (c *Client) ApproveOperation(ctx context.Context, id int64) (Operation, error) {
	var resp Operation
	err := c.do(ctx, http.MethodPost, c.pactPath(fmt.Sprintf("operations/%d/approve", id)), nil, &resp)
	return resp, err
}

// ExecuteOperation dispatches a fully approved operation.
func (c *Client) ExecuteOperation(ctx context.Context, id int64) (Operation, error) {
	var resp Operation
	err := c.do(ctx, http.MethodPost, c.pactPath(fmt.Sprintf("operations/%d/execute", id)), nil, &resp)
	return resp, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, description string) (Task, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.pactPath("tasks"), body, &resp)
	return resp, err
}

// SubmitAcknowledgment submits a signed acknowledgment toward a participant.
func (c *Client) SubmitAcknowledgment(ctx context.Context, target, message, signature string) error {
	body := map[string]any{
		"target":    target,
		"message":   message,
		"signature": signature,
	}
	return c.do(ctx, http.MethodPost, c.pactPath("acks"), body, nil)
}

// Handshake returns the mutual handshake between two participants.
func (c *Client) Handshake(ctx context.Context, partyA, partyB string) (Handshake, error) {
	var resp Handshake
	endpoint := c.pactPath(fmt.Sprintf("handshakes/%s/%s", url.PathEscape(partyA), url.PathEscape(partyB)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// VoteProposal votes on a proposal.
func (c *Client) VoteProposal(ctx context.Context, id int64, support bool) (Proposal, error) {
	body := map[string]any{"support": support}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.pactPath(fmt.Sprintf("proposals/%d/votes", id)), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.pactPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) pactPath(p string) string {
	pact := url.PathEscape(c.PactID)
	return fmt.Sprintf("v0/pacts/%s/%s", pact, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
