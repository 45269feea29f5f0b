package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const mailSlurpBaseURL = "https://api.mailslurp.com"

// Inbox is a disposable mailbox.
type Inbox struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
}

// Email is a received message.
type Email struct {
	ID        string   `json:"id"`
	InboxID   string   `json:"inboxId"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	CreatedAt string   `json:"createdAt"`
}

// Mailbox is the disposable inbox service used by registration flows.
type Mailbox interface {
	CreateInbox(ctx context.Context) (Inbox, error)
	WaitForLatestEmail(ctx context.Context, inboxID string, timeout time.Duration) (Email, error)
	Email(ctx context.Context, emailID string) (Email, error)
	DeleteInbox(ctx context.Context, inboxID string) error
}

// MailSlurpClient talks to the MailSlurp REST API.
type MailSlurpClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

func NewMailSlurpClient(apiKey string, logger *zap.Logger) *MailSlurpClient {
	return &MailSlurpClient{
		client:  &http.Client{Timeout: 90 * time.Second},
		baseURL: mailSlurpBaseURL,
		apiKey:  apiKey,
		logger:  logger.Named("mailbox"),
	}
}

func (m *MailSlurpClient) CreateInbox(ctx context.Context) (Inbox, error) {
	var inbox Inbox
	if err := m.request(ctx, http.MethodPost, "/inboxes", nil, &inbox); err != nil {
		return Inbox{}, fmt.Errorf("failed to create inbox: %w", err)
	}
	m.logger.Debug("inbox created", zap.String("inbox", inbox.ID), zap.String("address", inbox.EmailAddress))
	return inbox, nil
}

// WaitForLatestEmail blocks until an unread email reaches the inbox or the
// timeout passes, in which case it returns ErrNoEmail.
func (m *MailSlurpClient) WaitForLatestEmail(ctx context.Context, inboxID string, timeout time.Duration) (Email, error) {
	query := url.Values{}
	query.Set("inboxId", inboxID)
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	query.Set("unreadOnly", "true")

	var email Email
	err := m.request(ctx, http.MethodGet, "/waitForLatestEmail", query, &email)
	if err != nil {
		if herr, ok := err.(*httpStatusError); ok && (herr.status == http.StatusRequestTimeout || herr.status == http.StatusNotFound) {
			return Email{}, fmt.Errorf("%w: inbox %s after %s", ErrNoEmail, inboxID, timeout)
		}
		return Email{}, fmt.Errorf("failed to wait for email: %w", err)
	}
	return email, nil
}

func (m *MailSlurpClient) Email(ctx context.Context, emailID string) (Email, error) {
	var email Email
	if err := m.request(ctx, http.MethodGet, "/emails/"+url.PathEscape(emailID), nil, &email); err != nil {
		return Email{}, fmt.Errorf("failed to fetch email: %w", err)
	}
	return email, nil
}

func (m *MailSlurpClient) DeleteInbox(ctx context.Context, inboxID string) error {
	if err := m.request(ctx, http.MethodDelete, "/inboxes/"+url.PathEscape(inboxID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete inbox: %w", err)
	}
	return nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.status, e.body)
}

func (m *MailSlurpClient) request(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	endpoint := strings.TrimRight(m.baseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

var (
	urlRe  = regexp.MustCompile(`https?://[^\s"'<>]+`)
	codeRe = regexp.MustCompile(`\b\d{4,8}\b`)
)

// ExtractVerificationLink returns the first link in body that looks like an
// account verification link.
func ExtractVerificationLink(body string) (string, error) {
	for _, link := range urlRe.FindAllString(body, -1) {
		lower := strings.ToLower(link)
		if strings.Contains(lower, "verify") || strings.Contains(lower, "confirm") || strings.Contains(lower, "activate") {
			return strings.TrimRight(link, ".,;)"), nil
		}
	}
	return "", fmt.Errorf("%w: no verification link", ErrNoEmail)
}

// ExtractVerificationCode returns the first standalone run of 4 to 8 digits.
func ExtractVerificationCode(body string) (string, error) {
	if code := codeRe.FindString(body); code != "" {
		return code, nil
	}
	return "", fmt.Errorf("%w: no verification code", ErrNoEmail)
}
