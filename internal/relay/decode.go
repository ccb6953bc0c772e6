package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// decodeBody wraps body in a decompressor for the given Content-Encoding.
// It reports whether the returned reader decodes, in which case the upstream
// Content-Length no longer applies. Unknown encodings pass through as is.
func decodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, bool, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, false, nil

	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if errors.Is(err, io.EOF) {
			return body, true, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("decode gzip body: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, body}}, true, nil

	case "deflate":
		br := bufio.NewReader(body)
		header, err := br.Peek(2)
		if len(header) == 0 && errors.Is(err, io.EOF) {
			return body, true, nil
		}
		// Some servers send raw deflate despite the zlib framing in RFC 9110.
		if len(header) == 2 && isZlibHeader(header[0], header[1]) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, false, fmt.Errorf("decode deflate body: %w", err)
			}
			return &decodedBody{Reader: zr, closers: []io.Closer{zr, body}}, true, nil
		}
		fr := flate.NewReader(br)
		return &decodedBody{Reader: fr, closers: []io.Closer{fr, body}}, true, nil

	case "br":
		return &decodedBody{Reader: brotli.NewReader(body), closers: []io.Closer{body}}, true, nil

	default:
		return body, false, nil
	}
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var firstErr error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
