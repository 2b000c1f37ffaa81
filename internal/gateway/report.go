package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// reportFilePrefix is the name prefix of saved report documents. The full name
// embeds the generation timestamp.
const reportFilePrefix = "DefectReport_Selected_"

// GenerateFromIDs requests a PDF report for the given record ids and saves the
// returned document to the working directory. Ids that are not numeric, i.e.
// still-ephemeral placeholder ids, are dropped with a warning and never sent
// to the backend. Returns the saved file path and whether the whole call
// succeeded; there is no partial-success signaling.
func (c *Client) GenerateFromIDs(ctx context.Context, ids []string) (string, bool) {
	numericIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			logger.Warn("Dropping non-numeric record id from report request", "id", id)
			continue
		}
		numericIDs = append(numericIDs, n)
	}
	if len(numericIDs) == 0 {
		logger.Warn("No numeric record ids to report on, skipping request", "requested", len(ids))
		return "", false
	}

	payload, err := json.Marshal(numericIDs)
	if err != nil {
		logger.Error("Failed to encode report request", "error", err)
		return "", false
	}

	requestURL := c.endpoint("/generate-report-db")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		logger.Error("Failed to create report request", "url", requestURL, "error", err)
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Info("Requesting report generation", "url", requestURL, "ids", numericIDs)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = handleNetworkError(err, requestURL)
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		logger.Error("Report generation failed", "url", requestURL, "status_code", resp.StatusCode, "body", string(body))
		return "", false
	}

	document, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("Failed to read report document", "url", requestURL, "error", err)
		return "", false
	}
	if len(document) == 0 {
		logger.Error("Report response was empty", "url", requestURL)
		return "", false
	}

	filename := fmt.Sprintf("%s%s.pdf", reportFilePrefix, time.Now().Format("20060102_150405"))
	path := filepath.Join(".", filename)
	if err := os.WriteFile(path, document, 0o644); err != nil {
		logger.Error("Failed to save report document", "path", path, "error", err)
		return "", false
	}

	logger.Info("Report saved", "path", path, "bytes", len(document), "record_count", len(numericIDs))
	return path, true
}
