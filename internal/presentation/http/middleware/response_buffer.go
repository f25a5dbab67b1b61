package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/sangkips/idempotency-gateway/internal/application/service"
)

// responseBuffer is an http.ResponseWriter that holds the whole response in
// memory until the coordinator decides what to do with it
type responseBuffer struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: http.Header{}, status: http.StatusOK}
}

func (b *responseBuffer) Header() http.Header {
	return b.header
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.wroteHeader || code <= 0 {
		return
	}
	b.status = code
	b.wroteHeader = true
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

func (b *responseBuffer) WriteString(s string) (int, error) {
	b.wroteHeader = true
	return b.body.WriteString(s)
}

// Flush is a no-op; the response is released only once it is complete.
func (b *responseBuffer) Flush() {}

func (b *responseBuffer) response() *service.Response {
	return &service.Response{
		StatusCode: b.status,
		Header:     b.header,
		Body:       b.body.Bytes(),
	}
}

// writeResponse copies resp onto w
func writeResponse(w http.ResponseWriter, resp *service.Response) {
	dst := w.Header()
	for k, vv := range resp.Header {
		dst[k] = append([]string(nil), vv...)
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// readBody drains r.Body and replaces it with a re-readable copy
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, err
}
