// Package gateway implements the stateless HTTP clients for the four remote
// resources: inference, defect CRUD, project CRUD and report generation. Every
// call is a single-attempt network round trip; transport failures are absorbed
// at this boundary and never propagate upward.
package gateway

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/errors"
	"github.com/defectscan/defectscan-go/internal/logging"
)

// Package-level logger specific to the gateway service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "gateway.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "gateway", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize gateway file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "gateway")
		closeLogger = func() error { return nil }
	}
}

// Client holds the configuration shared by the resource clients. It carries no
// mutable state beyond the underlying http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client from settings. The HTTP client is configured with the
// settings timeout to prevent hanging requests.
func New(settings *conf.Settings) *Client {
	timeout := time.Duration(settings.Gateway.TimeoutSeconds) * time.Second
	logger.Info("Creating backend gateway client", "base_url", settings.Gateway.APIURL, "timeout", timeout)
	return &Client{
		baseURL:    strings.TrimRight(settings.Gateway.APIURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases the service log file.
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing gateway logger: %v", err)
		}
	}
}

// endpoint joins the base URL with a path.
func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// handleNetworkError converts a transport error into a categorized error with
// a more specific message.
func handleNetworkError(err error, requestURL string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Warn("Network request timed out", "url", requestURL, "error", err)
		return errors.Newf("request timed out: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", requestURL).
			Component("gateway").
			Build()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) {
			logger.Error("DNS resolution failed", "url", urlErr.URL, "error", err)
			return errors.Newf("DNS resolution failed: %w", err).
				Category(errors.CategoryNetwork).
				Context("url", requestURL).
				Component("gateway").
				Build()
		}
	}
	logger.Error("Network error occurred", "url", requestURL, "error", err)
	return errors.Newf("network error: %w", err).
		Category(errors.CategoryNetwork).
		Context("url", requestURL).
		Component("gateway").
		Build()
}

// drainAndClose consumes the rest of a response body so the connection can be
// reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// statusError builds an error for a non-2xx response.
func statusError(operation, requestURL string, statusCode int, body []byte) error {
	preview := string(body)
	if len(preview) > 500 {
		preview = preview[:500] + "..."
	}
	return errors.Newf("%s failed with status %d: %s", operation, statusCode, preview).
		Category(errors.CategoryHTTP).
		Context("status_code", statusCode).
		Context("url", requestURL).
		Component("gateway").
		Build()
}

// Status probes the backend health endpoint. It reports reachability only and
// absorbs all failures.
func (c *Client) Status(ctx context.Context) bool {
	requestURL := c.endpoint("/status")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		logger.Error("Failed to create status request", "url", requestURL, "error", err)
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = handleNetworkError(err, requestURL)
		return false
	}
	defer drainAndClose(resp.Body)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		logger.Warn("Backend status probe returned non-2xx", "url", requestURL, "status_code", resp.StatusCode)
	}
	return ok
}
