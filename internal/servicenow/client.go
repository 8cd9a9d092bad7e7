package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk/deskbot/internal/models"
)

// ErrNotFound is returned when a ticket number does not exist.
var ErrNotFound = errors.New("record not found")

// Client is a thin client for the ServiceNow table API. Status and knowledge
// lookups are read-only GETs. Ticket creation is a single POST carrying an
// idempotency key; it is never retried here, because a duplicate submission
// would open a duplicate incident.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *zap.Logger
}

type CreateTicketRequest struct {
	Summary   string
	Category  string
	CallerID  string
	DedupeKey string
}

func NewClient(baseURL, username, password string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) GetTicket(ctx context.Context, number string) (*models.Ticket, error) {
	endpoint := fmt.Sprintf("%s/api/now/table/incident?sysparm_query=number=%s&sysparm_limit=1",
		c.baseURL, url.QueryEscape(number))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ticket request: %w", err)
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticket lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket lookup returned status %d", resp.StatusCode)
	}

	var body struct {
		Result []models.Ticket `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode ticket response: %w", err)
	}
	if len(body.Result) == 0 {
		return nil, ErrNotFound
	}
	return &body.Result[0], nil
}

func (c *Client) CreateTicket(ctx context.Context, reqData CreateTicketRequest) (*models.Ticket, error) {
	payload, err := json.Marshal(map[string]string{
		"short_description": reqData.Summary,
		"category":          reqData.Category,
		"caller_id":         reqData.CallerID,
		"correlation_id":    reqData.DedupeKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticket payload: %w", err)
	}

	endpoint := c.baseURL + "/api/now/table/incident"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build create request: %w", err)
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticket creation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket creation returned status %d", resp.StatusCode)
	}

	var body struct {
		Result models.Ticket `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode create response: %w", err)
	}

	c.logger.Info("Created ticket",
		zap.String("number", body.Result.Number),
		zap.String("dedupe_key", reqData.DedupeKey))
	return &body.Result, nil
}

// ResetPassword requests a temporary credential for the given user. The
// endpoint is idempotent on the ServiceNow side, so failures surface to the
// user without a local retry.
func (c *Client) ResetPassword(ctx context.Context, username string) error {
	payload, err := json.Marshal(map[string]string{"user_name": username})
	if err != nil {
		return fmt.Errorf("failed to marshal reset payload: %w", err)
	}

	endpoint := c.baseURL + "/api/now/password_reset"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build reset request: %w", err)
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("password reset returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) SearchKnowledge(ctx context.Context, query string) ([]models.Article, error) {
	endpoint := fmt.Sprintf("%s/api/now/table/kb_knowledge?sysparm_query=short_descriptionLIKE%s&sysparm_limit=3",
		c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build knowledge request: %w", err)
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge search returned status %d", resp.StatusCode)
	}

	var body struct {
		Result []models.Article `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge response: %w", err)
	}
	return body.Result, nil
}

func (c *Client) prepare(req *http.Request) {
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
