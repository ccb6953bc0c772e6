package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"downloadrelay/config"
	"downloadrelay/handler"
	"downloadrelay/internal/relay"
	relaymocks "downloadrelay/internal/relay/mocks"
	"downloadrelay/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var wantCORS = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization",
}

func newWorker(fetcher relay.Fetcher) *relay.Worker {
	return relay.NewWorker(fetcher, config.DefaultRelayConfig(), mocks.NewPermissiveLogger(), mocks.NewPermissiveMetrics())
}

func getRequest(query map[string]string) handler.Request {
	return handler.NewRequest("http", http.MethodGet, query)
}

func decodeError(t *testing.T, resp handler.Response) map[string]interface{} {
	t.Helper()
	defer resp.CloseBody()

	require.NotNil(t, resp.Body)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestWorker_Preflight(t *testing.T) {
	fetcher := new(relaymocks.MockFetcher)
	worker := newWorker(fetcher)

	resp, err := worker.Process(context.Background(), handler.NewRequest("http", http.MethodOptions, nil))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, wantCORS, resp.Headers)
	assert.Nil(t, resp.Body)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestWorker_MissingURL(t *testing.T) {
	fetcher := new(relaymocks.MockFetcher)
	worker := newWorker(fetcher)

	resp, err := worker.Process(context.Background(), getRequest(map[string]string{"filename": "x"}))

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}, resp.Headers)
	assert.Equal(t, map[string]interface{}{"error": "Download URL is required"}, decodeError(t, resp))
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestWorker_RelaysUpstream(t *testing.T) {
	fetcher := new(relaymocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://cdn.example.com/v.bin").Return(&relay.Upstream{
		Body:          io.NopCloser(strings.NewReader("video-bytes")),
		ContentType:   "application/octet-stream",
		ContentLength: 11,
		StatusCode:    200,
	}, nil)

	worker := newWorker(fetcher)

	resp, err := worker.Process(context.Background(), getRequest(map[string]string{
		"url":      "https://cdn.example.com/v.bin",
		"filename": "My Video!!.mp4",
		"type":     "video",
	}))
	require.NoError(t, err)
	defer resp.CloseBody()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Headers["Content-Type"])
	assert.Equal(t, `attachment; filename="My_Video.mp4"`, resp.Headers["Content-Disposition"])
	assert.Equal(t, "no-cache", resp.Headers["Cache-Control"])
	for key, value := range wantCORS {
		assert.Equal(t, value, resp.Headers[key], key)
	}
	assert.EqualValues(t, 11, resp.ContentLength)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
	fetcher.AssertExpectations(t)
}

func TestWorker_MediaTypes(t *testing.T) {
	tests := []struct {
		mediaType       string
		upstreamType    string
		wantType        string
		wantDisposition string
	}{
		{"", "application/octet-stream", "video/mp4", `attachment; filename="download.mp4"`},
		{"audio", "text/plain", "audio/mpeg", `attachment; filename="download.mp3"`},
		{"photo", "image/png", "image/png", `attachment; filename="download.jpg"`},
		{"photo", "text/html", "image/jpeg", `attachment; filename="download.jpg"`},
		{"document", "application/pdf", "application/pdf", `attachment; filename="download"`},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType+" "+tt.upstreamType, func(t *testing.T) {
			fetcher := new(relaymocks.MockFetcher)
			fetcher.On("Fetch", mock.Anything, "https://x/y").Return(&relay.Upstream{
				Body:          io.NopCloser(strings.NewReader("")),
				ContentType:   tt.upstreamType,
				ContentLength: -1,
				StatusCode:    200,
			}, nil)

			query := map[string]string{"url": "https://x/y"}
			if tt.mediaType != "" {
				query["type"] = tt.mediaType
			}

			resp, err := newWorker(fetcher).Process(context.Background(), getRequest(query))
			require.NoError(t, err)
			defer resp.CloseBody()

			assert.Equal(t, tt.wantType, resp.Headers["Content-Type"])
			assert.Equal(t, tt.wantDisposition, resp.Headers["Content-Disposition"])
		})
	}
}

func TestWorker_FetchFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"upstream 404", &relay.StatusError{StatusCode: 404}, 404, "Download source returned error: 404"},
		{"timeout", relay.ErrFetchTimeout, 504, "Download request timed out"},
		{"unknown", errors.New("tls handshake failure"), 500, "Failed to download file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := new(relaymocks.MockFetcher)
			fetcher.On("Fetch", mock.Anything, mock.Anything).Return(nil, tt.err)

			worker := relay.NewWorker(fetcher, config.DefaultRelayConfig(), mocks.NewPermissiveLogger(), mocks.NewPermissiveMetrics())

			resp, err := worker.Process(context.Background(), getRequest(map[string]string{"url": "https://x/y"}))
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Headers["Content-Type"])
			assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
			assert.Len(t, resp.Headers, 2)

			body := decodeError(t, resp)
			assert.Equal(t, tt.wantMessage, body["error"])
			assert.NotEmpty(t, body["details"])

			ts, ok := body["timestamp"].(string)
			require.True(t, ok)
			parsed, err := time.Parse(time.RFC3339, ts)
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now(), parsed, time.Minute)
			assert.True(t, strings.HasSuffix(ts, "Z"))
		})
	}
}

func TestWorker_RecordsTransferredBytes(t *testing.T) {
	fetcher := new(relaymocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return(&relay.Upstream{
		Body:          io.NopCloser(strings.NewReader("12345")),
		ContentLength: 5,
		StatusCode:    200,
	}, nil)

	metrics := new(mocks.MockMetrics)
	metrics.On("RecordSuccess", "relay").Return()
	metrics.On("RecordFileSize", "audio", int64(5)).Return().Once()

	worker := relay.NewWorker(fetcher, config.DefaultRelayConfig(), mocks.NewPermissiveLogger(), metrics)

	resp, err := worker.Process(context.Background(), getRequest(map[string]string{"url": "https://x", "type": "audio"}))
	require.NoError(t, err)

	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, resp.Body.Close())

	metrics.AssertExpectations(t)
}

func TestWorker_ClassifyError(t *testing.T) {
	resp := newWorker(new(relaymocks.MockFetcher)).ClassifyError("req-1", &relay.StatusError{StatusCode: 502})

	assert.Equal(t, 502, resp.StatusCode)
	assert.Equal(t, "Download source returned error: 502", decodeError(t, resp)["error"])
}

func TestWorker_Health(t *testing.T) {
	assert.NoError(t, newWorker(new(relaymocks.MockFetcher)).Health(context.Background()))
	assert.Error(t, newWorker(nil).Health(context.Background()))
}

// The relay round trip through a real upstream: bytes in equal bytes out.
func TestWorker_EndToEnd(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\n binary \x00\xff payload")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	cfg := config.DefaultRelayConfig()
	client := relay.NewClient(cfg, mocks.NewPermissiveLogger(), mocks.NewPermissiveMetrics())
	worker := relay.NewWorker(client, cfg, mocks.NewPermissiveLogger(), mocks.NewPermissiveMetrics())

	t.Run("success", func(t *testing.T) {
		resp, err := worker.Process(context.Background(), getRequest(map[string]string{
			"url":      upstream.URL + "/pic",
			"filename": "Holiday Pic",
			"type":     "photo",
		}))
		require.NoError(t, err)
		defer resp.CloseBody()

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
		assert.Equal(t, "image/png", resp.Headers["Content-Type"])
		assert.Equal(t, `attachment; filename="Holiday_Pic.jpg"`, resp.Headers["Content-Disposition"])
	})

	t.Run("upstream status mirrored", func(t *testing.T) {
		resp, err := worker.Process(context.Background(), getRequest(map[string]string{
			"url": upstream.URL + "/missing",
		}))
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "Download source returned error: 404", decodeError(t, resp)["error"])
	})
}
