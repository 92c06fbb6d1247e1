package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/messaging_service/domain"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v19.0"

	pageSize = 100
	maxPages = 50
)

// Client talks to the WhatsApp Business Cloud API template endpoints.
// Credentials are per branch and passed on every call.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

func NewClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		logger:     logger.With("provider", "whatsapp"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// APIError is the error envelope of the Graph API.
type APIError struct {
	StatusCode   int    `json:"-"`
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	UserTitle    string `json:"error_user_title"`
	UserMessage  string `json:"error_user_msg"`
	TraceID      string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.UserMessage != "" {
		msg += ": " + e.UserMessage
	}
	return fmt.Sprintf("whatsapp api error (status %d, code %d): %s", e.StatusCode, e.Code, msg)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

type listResponse struct {
	Data   []domain.ProviderTemplate `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

func (c *Client) templatesURL(creds coredomain.ProviderCredentials) string {
	version := creds.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("%s/%s/%s/message_templates", c.baseURL, version, url.PathEscape(creds.BusinessAccountID))
}

// SubmitTemplate registers a template for approval.
func (c *Client) SubmitTemplate(ctx context.Context, creds coredomain.ProviderCredentials, submission domain.TemplateSubmission) (*domain.SubmissionResult, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.templatesURL(creds), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result domain.SubmissionResult
	if err := c.do(ctx, creds, req, &result); err != nil {
		c.logger.WarnContext(ctx, "Template submission failed", "error", err, "name", submission.Name, "language", submission.Language)
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("whatsapp api returned no template id for %s", submission.Name)
	}
	c.logger.InfoContext(ctx, "Template submitted", "name", submission.Name, "provider_template_id", result.ID, "status", result.Status)
	return &result, nil
}

// ListTemplates follows the cursor paging until the full template list is read.
func (c *Client) ListTemplates(ctx context.Context, creds coredomain.ProviderCredentials) ([]domain.ProviderTemplate, error) {
	var all []domain.ProviderTemplate
	after := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(pageSize))
		q.Set("fields", "id,name,language,status,category,components")
		if after != "" {
			q.Set("after", after)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.templatesURL(creds)+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create list request: %w", err)
		}

		var resp listResponse
		if err := c.do(ctx, creds, req, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			c.logger.DebugContext(ctx, "Template list read", "templates", len(all), "pages", page+1)
			return all, nil
		}
		after = resp.Paging.Cursors.After
	}
	c.logger.WarnContext(ctx, "Template list truncated", "templates", len(all), "max_pages", maxPages)
	return all, nil
}

func (c *Client) do(ctx context.Context, creds coredomain.ProviderCredentials, req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call whatsapp api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read whatsapp api response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error != nil {
			env.Error.StatusCode = resp.StatusCode
			return env.Error
		}
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &APIError{StatusCode: resp.StatusCode, Message: snippet}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode whatsapp api response: %w", err)
	}
	return nil
}
