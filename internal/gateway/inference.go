package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/errors"
	"github.com/defectscan/defectscan-go/internal/model"
)

// CapturedImage is a photo handed to an analysis session: raw bytes plus a
// locally resolvable preview location.
type CapturedImage struct {
	Filename string
	Data     []byte
	// SourceURL is the local preview URL shown while the record is still a
	// placeholder, typically a file path.
	SourceURL string
}

// InferenceProvider is the capability interface for image classification. The
// mock and remote implementations return the exact same result shape so
// callers are indifferent to which one is active.
type InferenceProvider interface {
	Analyze(ctx context.Context, image CapturedImage, projectID int64) (*model.InferenceResult, error)
}

// NewInferenceProvider selects the provider implementation from configuration.
// The selection happens once at startup; there is no dynamic switching.
func NewInferenceProvider(settings *conf.Settings, client *Client) InferenceProvider {
	if settings.Gateway.Inference.Provider == conf.InferenceProviderMock {
		logger.Info("Using mock inference provider", "delay_ms", settings.Gateway.Inference.MockDelayMs)
		return NewMockProvider(time.Duration(settings.Gateway.Inference.MockDelayMs) * time.Millisecond)
	}
	logger.Info("Using remote inference provider", "base_url", client.BaseURL())
	return &RemoteProvider{client: client}
}

// MockProvider returns canned classifications after a fixed simulated delay.
// For offline demonstration only, never for production correctness. Analyze is
// called from one goroutine per image in a batch, so the random draw uses the
// concurrency-safe top-level source.
type MockProvider struct {
	delay time.Duration
}

var mockResults = []model.InferenceResult{
	{Label: "wall_crack", Confidence: 0.95},
	{Label: "leaking_pipe", Confidence: 0.88},
	{Label: "peeling_paint", Confidence: 0.76},
	{Label: "broken_tile", Confidence: 0.92},
	{Label: "mold_growth", Confidence: 0.85},
}

// NewMockProvider creates a mock provider with the given simulated latency.
func NewMockProvider(delay time.Duration) *MockProvider {
	return &MockProvider{delay: delay}
}

// Analyze waits out the simulated delay and returns one of the canned results.
func (p *MockProvider) Analyze(ctx context.Context, image CapturedImage, _ int64) (*model.InferenceResult, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if len(image.Data) == 0 {
		return nil, errors.Newf("no image provided").
			Category(errors.CategoryValidation).
			Component("gateway").
			Build()
	}

	result := mockResults[rand.IntN(len(mockResults))]
	return &result, nil
}

// RemoteProvider posts images to the configured inference endpoint.
type RemoteProvider struct {
	client *Client
}

// predictResponse is the /predict response envelope. The backend reports
// application-level failures with a 200 status and success=false.
type predictResponse struct {
	model.InferenceResult
	Success *bool  `json:"success,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Analyze uploads the image as multipart form data and returns the parsed
// classification, or the server's error message on failure.
func (p *RemoteProvider) Analyze(ctx context.Context, image CapturedImage, projectID int64) (*model.InferenceResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", image.Filename)
	if err != nil {
		return nil, errors.Newf("failed to create multipart form: %w", err).
			Category(errors.CategoryImageProcess).
			Component("gateway").
			Build()
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, errors.Newf("failed to write image data: %w", err).
			Category(errors.CategoryImageProcess).
			Component("gateway").
			Build()
	}
	if projectID != 0 {
		if err := writer.WriteField("project_id", strconv.FormatInt(projectID, 10)); err != nil {
			return nil, errors.Newf("failed to write project id field: %w", err).
				Category(errors.CategoryImageProcess).
				Component("gateway").
				Build()
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Newf("failed to finalize multipart form: %w", err).
			Category(errors.CategoryImageProcess).
			Component("gateway").
			Build()
	}

	requestURL := p.client.endpoint("/predict")
	logger.Debug("Posting image for inference", "url", requestURL, "filename", image.Filename, "size", len(image.Data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return nil, errors.Newf("failed to create inference request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", requestURL).
			Component("gateway").
			Build()
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return nil, handleNetworkError(err, requestURL)
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf("failed to read inference response: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", requestURL).
			Component("gateway").
			Build()
	}

	var parsed predictResponse
	if decodeErr := json.Unmarshal(responseBody, &parsed); decodeErr != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, errors.Newf("failed to decode inference response: %w", decodeErr).
			Category(errors.CategoryFileParsing).
			Context("url", requestURL).
			Component("gateway").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := parsed.Detail
		if message == "" {
			message = parsed.Error
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		logger.Error("Inference request failed", "url", requestURL, "status_code", resp.StatusCode, "message", message)
		return nil, errors.Newf("inference failed: %s", message).
			Category(errors.CategoryInference).
			Context("status_code", resp.StatusCode).
			Context("url", requestURL).
			Component("gateway").
			Build()
	}

	if parsed.Success != nil && !*parsed.Success {
		message := parsed.Error
		if message == "" {
			message = "inference reported failure"
		}
		logger.Error("Inference reported failure", "url", requestURL, "message", message)
		return nil, errors.Newf("inference failed: %s", message).
			Category(errors.CategoryInference).
			Context("url", requestURL).
			Component("gateway").
			Build()
	}

	logger.Info("Image analyzed", "filename", image.Filename, "label", parsed.Label, "confidence", parsed.Confidence)
	result := parsed.InferenceResult
	return &result, nil
}
