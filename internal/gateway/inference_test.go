package gateway

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defectscan/defectscan-go/internal/conf"
)

func testImage() CapturedImage {
	return CapturedImage{
		Filename:  "crack.jpg",
		Data:      []byte("jpeg bytes"),
		SourceURL: "/tmp/crack.jpg",
	}
}

func TestNewInferenceProvider_SelectsByConfig(t *testing.T) {
	client := newTestClient(t)

	settings := &conf.Settings{}
	settings.Gateway.Inference.Provider = conf.InferenceProviderMock
	assert.IsType(t, &MockProvider{}, NewInferenceProvider(settings, client))

	settings.Gateway.Inference.Provider = conf.InferenceProviderRemote
	assert.IsType(t, &RemoteProvider{}, NewInferenceProvider(settings, client))
}

func TestMockProvider_Analyze(t *testing.T) {
	provider := NewMockProvider(0)

	result, err := provider.Analyze(context.Background(), testImage(), 1)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Label)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestMockProvider_Analyze_ConcurrentCalls(t *testing.T) {
	provider := NewMockProvider(0)

	const workers = 16
	const iterations = 200

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				result, err := provider.Analyze(context.Background(), testImage(), 1)
				assert.NoError(t, err)
				if assert.NotNil(t, result) {
					assert.NotEmpty(t, result.Label)
				}
			}
		}()
	}
	wg.Wait()
}

func TestMockProvider_Analyze_EmptyImage(t *testing.T) {
	provider := NewMockProvider(0)

	result, err := provider.Analyze(context.Background(), CapturedImage{Filename: "empty.jpg"}, 1)

	require.Error(t, err)
	assert.Nil(t, result)
}

func TestMockProvider_Analyze_ContextCancelled(t *testing.T) {
	provider := NewMockProvider(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := provider.Analyze(ctx, testImage(), 1)

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestRemoteProvider_Analyze_Success(t *testing.T) {
	client := newTestClient(t)
	provider := &RemoteProvider{client: client}

	var gotFilename, gotProjectID string
	httpmock.RegisterResponder(http.MethodPost, "http://backend.test/predict",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseMultipartForm(1<<20))
			_, header, err := req.FormFile("file")
			require.NoError(t, err)
			gotFilename = header.Filename
			gotProjectID = req.FormValue("project_id")
			return httpmock.NewStringResponse(http.StatusOK,
				`{"success": true, "label": "wall_crack", "confidence": 0.95, "caption": "Hairline crack along the wall surface"}`), nil
		})

	result, err := provider.Analyze(context.Background(), testImage(), 7)

	require.NoError(t, err)
	assert.Equal(t, "wall_crack", result.Label)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
	assert.Equal(t, "Hairline crack along the wall surface", result.Caption)
	assert.Equal(t, "crack.jpg", gotFilename)
	assert.Equal(t, "7", gotProjectID)
}

func TestRemoteProvider_Analyze_ErrorStatusSurfacesDetail(t *testing.T) {
	client := newTestClient(t)
	provider := &RemoteProvider{client: client}

	httpmock.RegisterResponder(http.MethodPost, "http://backend.test/predict",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail": "Project not found"}`))

	result, err := provider.Analyze(context.Background(), testImage(), 99)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "Project not found")
}

func TestRemoteProvider_Analyze_ApplicationFailure(t *testing.T) {
	client := newTestClient(t)
	provider := &RemoteProvider{client: client}

	httpmock.RegisterResponder(http.MethodPost, "http://backend.test/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"success": false, "error": "model not loaded"}`))

	result, err := provider.Analyze(context.Background(), testImage(), 7)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRemoteProvider_Analyze_NetworkError(t *testing.T) {
	client := newTestClient(t)
	provider := &RemoteProvider{client: client}

	httpmock.RegisterResponder(http.MethodPost, "http://backend.test/predict",
		httpmock.NewErrorResponder(assert.AnError))

	result, err := provider.Analyze(context.Background(), testImage(), 7)

	require.Error(t, err)
	assert.Nil(t, result)
}
