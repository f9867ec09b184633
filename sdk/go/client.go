package escrowlinesdk

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

// Client is a minimal Escrowline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID                int64  `json:"id"`
	Client            string `json:"client"`
	Freelancer        string `json:"freelancer,omitempty"`
	Title             string `json:"title"`
	Amount            int64  `json:"amount"`
	PaymentToken      string `json:"payment_token,omitempty"`
	Deadline          string `json:"deadline"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
	CompletedAt       string `json:"completed_at,omitempty"`
	DisputeStatus     string `json:"dispute_status"`
	DisputeReason     string `json:"dispute_reason,omitempty"`
	DisputeResolution string `json:"dispute_resolution,omitempty"`
	DeliverableURI    string `json:"deliverable_uri,omitempty"`
}

// Reputation is the per-address trust record.
type Reputation struct {
	Address           string `json:"address"`
	CompletedProjects int64  `json:"completed_projects"`
	TotalEarnings     int64  `json:"total_earnings"`
	Karma             int64  `json:"karma"`
	TotalDisputes     int64  `json:"total_disputes"`
	SuccessRate       int64  `json:"success_rate"`
}

// Settings holds ledger-wide scalars.
type Settings struct {
	Owner    string `json:"owner"`
	Treasury string `json:"treasury"`
	FeeBps   int64  `json:"fee_bps"`
}

// Transfer is one outbound value movement.
type Transfer struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Token     string `json:"token,omitempty"`
	Amount    int64  `json:"amount"`
	ProjectID *int64 `json:"project_id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project priced in base units.
func (c *Client) CreateProject(ctx context.Context, title string, amount int64, paymentToken, deadline string) (Project, error) {
	body := map[string]any{
		"title":         title,
		"amount":        amount,
		"payment_token": paymentToken,
		"deadline":      deadline,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id int64) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/projects/%d", id), nil, &resp)
	return resp, err
}

// AcceptProject accepts an open project as the caller.
func (c *Client) AcceptProject(ctx context.Context, id int64) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/projects/%d/accept", id), map[string]any{}, &resp)
	return resp, err
}

// FundProject locks the payment in escrow. Paid must equal the project amount.
func (c *Client) FundProject(ctx context.Context, id, paid int64) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/projects/%d/fund", id), map[string]any{"paid_amount": paid}, &resp)
	return resp, err
}

// StartWork marks a funded project in progress.
func (c *Client) StartWork(ctx context.Context, id int64) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/projects/%d/start", id), map[string]any{}, &resp)
	return resp, err
}

// SubmitWork submits the deliverable for review.
func (c *Client) SubmitWork(ctx context.Context, id int64, deliverableURI string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/projects/%d/submit", id), map[string]any{"deliverable_uri": deliverableURI}, &resp)
	return resp, err
}

// ApproveCompletion releases escrow to the freelancer.
func (c *Client) ApproveCompletion(ctx context.Context, id int64) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/projects/%d/approve", id), map[string]any{}, &resp)
	return resp, err
}

// InitiateDispute opens a dispute on a funded project.
func (c *Client) InitiateDispute(ctx context.Context, id int64, reason string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/projects/%d/dispute", id), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// ResolveDispute resolves a dispute in favour of winner. Owner only.
func (c *Client) ResolveDispute(ctx context.Context, id int64, winner, resolution string) (Project, error) {
	body := map[string]any{"winner": winner, "resolution": resolution}
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/projects/%d/resolve", id), body, &resp)
	return resp, err
}

// GetReputation fetches the reputation record for an address.
func (c *Client) GetReputation(ctx context.Context, address string) (Reputation, error) {
	var resp Reputation
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/reputation/%s", url.PathEscape(address)), nil, &resp)
	return resp, err
}

// UserProjects returns the project ids an address participates in.
func (c *Client) UserProjects(ctx context.Context, address string) ([]int64, error) {
	var resp struct {
		ProjectIDs []int64 `json:"project_ids"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/users/%s/projects", url.PathEscape(address)), nil, &resp)
	return resp.ProjectIDs, err
}

// Settings returns the ledger settings.
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodGet, "v1/settings", nil, &resp)
	return resp, err
}

// Transfers lists value transfers, optionally scoped to a project.
func (c *Client) Transfers(ctx context.Context, projectID *int64) ([]Transfer, error) {
	endpoint := "v1/transfers"
	if projectID != nil {
		endpoint = fmt.Sprintf("%s?project_id=%d", endpoint, *projectID)
	}
	var resp []Transfer
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

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
