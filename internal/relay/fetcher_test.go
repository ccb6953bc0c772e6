package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"downloadrelay/config"
	"downloadrelay/observability/mocks"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(timeout time.Duration) *Client {
	cfg := config.DefaultRelayConfig()
	cfg.FetchTimeout = timeout
	return NewClient(cfg, mocks.NewPermissiveLogger(), mocks.NewPermissiveMetrics())
}

func readAll(t *testing.T, upstream *Upstream) []byte {
	t.Helper()
	defer upstream.Body.Close()

	data, err := io.ReadAll(upstream.Body)
	require.NoError(t, err)
	return data
}

func TestClient_FetchSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	upstream, err := newTestClient(time.Second).Fetch(context.Background(), server.URL+"/file")
	require.NoError(t, err)

	assert.Equal(t, "payload", string(readAll(t, upstream)))
	assert.Equal(t, "application/octet-stream", upstream.ContentType)
	assert.EqualValues(t, 7, upstream.ContentLength)
	assert.Equal(t, 200, upstream.StatusCode)

	for key, value := range config.DefaultBrowserHeaders() {
		if key == "Connection" {
			continue
		}
		assert.Equal(t, value, got.Get(key), key)
	}
}

func TestClient_FetchBinaryRoundTrip(t *testing.T) {
	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i * 31)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	upstream, err := newTestClient(time.Second).Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(payload, readAll(t, upstream)))
}

func TestClient_FetchNonOKStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusServiceUnavailable, http.StatusNoContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			_, err := newTestClient(time.Second).Fetch(context.Background(), server.URL)

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, status, statusErr.StatusCode)
		})
	}
}

func redirectServer(t *testing.T, hops int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(r.URL.Path, "/hop/%d", &n)
		if n >= hops {
			_, _ = w.Write([]byte("arrived"))
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n+1), http.StatusFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_FetchFollowsRedirects(t *testing.T) {
	server := redirectServer(t, 5)

	upstream, err := newTestClient(time.Second).Fetch(context.Background(), server.URL+"/hop/0")
	require.NoError(t, err)

	assert.Equal(t, "arrived", string(readAll(t, upstream)))
	assert.Equal(t, server.URL+"/hop/5", upstream.FinalURL)
}

func TestClient_FetchTooManyRedirects(t *testing.T) {
	server := redirectServer(t, 6)

	_, err := newTestClient(time.Second).Fetch(context.Background(), server.URL+"/hop/0")

	require.ErrorIs(t, err, ErrTooManyRedirects)
	assert.Equal(t, 500, Classify(err).Status)
}

func TestClient_FetchConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = newTestClient(time.Second).Fetch(context.Background(), "http://"+addr+"/file")

	require.Error(t, err)
	assert.Equal(t, KindConnectionFailure, Classify(err).Kind)
	assert.Equal(t, 502, Classify(err).Status)
}

func TestClient_FetchUnresolvableHost(t *testing.T) {
	_, err := newTestClient(2*time.Second).Fetch(context.Background(), "http://relay-test.invalid/file")

	require.Error(t, err)
	var dnsErr *net.DNSError
	assert.ErrorAs(t, err, &dnsErr)
	assert.Equal(t, 502, Classify(err).Status)
}

func TestClient_FetchHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(100*time.Millisecond).Fetch(context.Background(), server.URL)

	require.ErrorIs(t, err, ErrFetchTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 504, Classify(err).Status)
}

func TestClient_FetchBodyOutlivesFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, chunk := range []string{"first-", "second-", "third"} {
			_, _ = w.Write([]byte(chunk))
			w.(http.Flusher).Flush()
			time.Sleep(150 * time.Millisecond)
		}
	}))
	defer server.Close()

	upstream, err := newTestClient(300*time.Millisecond).Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "first-second-third", string(readAll(t, upstream)))
}

func TestClient_FetchAbandonsStalledBody(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	upstream, err := newTestClient(200*time.Millisecond).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	defer upstream.Body.Close()

	start := time.Now()
	data, err := io.ReadAll(upstream.Body)

	require.ErrorIs(t, err, ErrFetchTimeout)
	assert.Equal(t, "partial", string(data))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 504, Classify(err).Status)
	assert.Equal(t, MsgTimeout, Classify(err).Message)
}

func TestClient_FetchSlowConsumerIsNotAbandoned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("one-"))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("two"))
	}))
	defer server.Close()

	upstream, err := newTestClient(100*time.Millisecond).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	defer upstream.Body.Close()

	buf := make([]byte, 4)
	n, err := io.ReadFull(upstream.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "one-", string(buf[:n]))

	time.Sleep(250 * time.Millisecond)

	rest, err := io.ReadAll(upstream.Body)
	require.NoError(t, err)
	assert.Equal(t, "two", string(rest))
}

func TestClient_FetchHonoursCallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(5*time.Second).Fetch(ctx, server.URL)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 504, Classify(err).Status)
}

func TestClient_FetchRejectsUnsupportedScheme(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/a", "file:///etc/passwd", "not a url"} {
		_, err := newTestClient(time.Second).Fetch(context.Background(), raw)

		require.Error(t, err, raw)
		assert.Equal(t, 500, Classify(err).Status, raw)
	}
}

func TestClient_FetchDecodesContentEncoding(t *testing.T) {
	const text = "relayed media bytes relayed media bytes"

	encoders := map[string]func(io.Writer) io.WriteCloser{
		"gzip": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		"deflate": func(w io.Writer) io.WriteCloser {
			return zlib.NewWriter(w)
		},
		"br": func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
	}

	for encoding, newWriter := range encoders {
		t.Run(encoding, func(t *testing.T) {
			var buf bytes.Buffer
			zw := newWriter(&buf)
			_, err := zw.Write([]byte(text))
			require.NoError(t, err)
			require.NoError(t, zw.Close())

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(buf.Bytes())
			}))
			defer server.Close()

			upstream, err := newTestClient(time.Second).Fetch(context.Background(), server.URL)
			require.NoError(t, err)

			assert.Equal(t, text, string(readAll(t, upstream)))
			assert.EqualValues(t, -1, upstream.ContentLength)
		})
	}
}

func TestDecodeBody_RawDeflate(t *testing.T) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write([]byte("raw deflate stream"))
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	body, decoded, err := decodeBody("deflate", io.NopCloser(&buf))
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.True(t, decoded)
	assert.Equal(t, "raw deflate stream", string(data))
}

func TestDecodeBody_Passthrough(t *testing.T) {
	for _, encoding := range []string{"", "identity", "compress"} {
		body, decoded, err := decodeBody(encoding, io.NopCloser(bytes.NewReader([]byte("plain"))))
		require.NoError(t, err)

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.False(t, decoded, encoding)
		assert.Equal(t, "plain", string(data))
	}
}

func TestDecodeBody_EmptyGzip(t *testing.T) {
	body, decoded, err := decodeBody("gzip", io.NopCloser(bytes.NewReader(nil)))
	require.NoError(t, err)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.True(t, decoded)
	assert.Empty(t, data)
}
