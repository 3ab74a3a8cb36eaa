package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"finreport-backend/internal/report"
	"finreport-backend/internal/shared/telemetry"
)

const (
	analyzePath   = "/api/analyze"
	healthPath    = "/api/health"
	fileField     = "file"
	genericFailed = "Failed to generate report"
	maxErrorBody  = 1 << 20
)

// Error is a failed analysis call. Status is zero for transport failures.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// Options configures the client. ClientID enables OAuth2 client credentials.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Client calls the remote analysis API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(opts Options) *Client {
	httpClient := &http.Client{}
	if strings.TrimSpace(opts.ClientID) != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		httpClient = cc.Client(context.Background())
	}
	if opts.Timeout > 0 {
		httpClient.Timeout = opts.Timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
	}
}

// Analyze uploads the file as multipart field "file" and decodes the result.
// It makes exactly one attempt.
func (c *Client) Analyze(ctx context.Context, fileName string, r io.Reader) (report.ReportData, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return report.ReportData{}, fmt.Errorf("build analysis request: %w", err)
	}
	size, err := io.Copy(part, r)
	if err != nil {
		return report.ReportData{}, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return report.ReportData{}, fmt.Errorf("build analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, &body)
	if err != nil {
		return report.ReportData{}, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.Warn("analysis.transport_error", map[string]any{
			"file":        fileName,
			"bytes":       size,
			"duration_ms": time.Since(start).Milliseconds(),
			"error":       err.Error(),
		})
		return report.ReportData{}, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	telemetry.Info("analysis.response", map[string]any{
		"file":        fileName,
		"bytes":       size,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return report.ReportData{}, &Error{Status: resp.StatusCode, Message: failureMessage(raw)}
	}

	var data report.ReportData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return report.ReportData{}, &Error{Status: resp.StatusCode, Message: genericFailed, Err: err}
	}
	return data, nil
}

// Health reports whether the analysis API answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: fmt.Sprintf("analysis api unhealthy: status %d", resp.StatusCode)}
	}
	return nil
}

// failureMessage returns the body's "detail" when it is a non-empty string.
func failureMessage(raw []byte) string {
	var parsed struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return genericFailed
	}
	if detail, ok := parsed.Detail.(string); ok && strings.TrimSpace(detail) != "" {
		return detail
	}
	return genericFailed
}
