package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFromIDs_FiltersNonNumericIDs(t *testing.T) {
	t.Chdir(t.TempDir())
	client := newTestClient(t)

	var requested []int64
	httpmock.RegisterResponder(http.MethodPost, "http://backend.test/generate-report-db",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&requested))
			return httpmock.NewBytesResponse(http.StatusOK, []byte("%PDF-1.4 fake")), nil
		})

	path, ok := client.GenerateFromIDs(context.Background(), []string{"12", "f8a1c2d4-local", "34"})

	require.True(t, ok)
	assert.Equal(t, []int64{12, 34}, requested)

	assert.True(t, strings.HasPrefix(strings.TrimPrefix(path, "./"), reportFilePrefix))
	assert.True(t, strings.HasSuffix(path, ".pdf"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))
}

func TestGenerateFromIDs_AllNonNumericSkipsRequest(t *testing.T) {
	client := newTestClient(t)

	path, ok := client.GenerateFromIDs(context.Background(), []string{"local-a", "local-b"})

	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestGenerateFromIDs_Failures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"server_error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom")},
		{"not_found", httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"No defects found for the given IDs"}`)},
		{"empty_document", httpmock.NewBytesResponder(http.StatusOK, nil)},
		{"network_error", httpmock.NewErrorResponder(assert.AnError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t)
			httpmock.RegisterResponder(http.MethodPost, "http://backend.test/generate-report-db", tt.responder)

			path, ok := client.GenerateFromIDs(context.Background(), []string{"12"})

			assert.False(t, ok)
			assert.Empty(t, path)
		})
	}
}
