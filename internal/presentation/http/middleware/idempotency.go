package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/idempotency-gateway/internal/application/service"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/dto/response"
)

// ginBufferedWriter holds the downstream handlers' output so it can be cached
// before anything reaches the client
type ginBufferedWriter struct {
	gin.ResponseWriter
	buf *responseBuffer
}

func (w *ginBufferedWriter) Header() http.Header {
	return w.buf.Header()
}

func (w *ginBufferedWriter) WriteHeader(code int) {
	w.buf.WriteHeader(code)
}

func (w *ginBufferedWriter) WriteHeaderNow() {
	w.buf.wroteHeader = true
}

func (w *ginBufferedWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *ginBufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

func (w *ginBufferedWriter) Status() int {
	return w.buf.status
}

func (w *ginBufferedWriter) Written() bool {
	return w.buf.wroteHeader
}

func (w *ginBufferedWriter) Size() int {
	if !w.buf.wroteHeader {
		return -1
	}
	return w.buf.body.Len()
}

func (w *ginBufferedWriter) Flush() {}

// Idempotency makes the routes it guards safe to retry. Responses are buffered,
// stored under METHOD:route-template:key and replayed to retries of the same
// key; concurrent duplicates are rejected or wait according to the service
// options.
func Idempotency(svc *service.IdempotencyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.Protects(c.Request.Method) {
			c.Next()
			return
		}

		body, err := readBody(c.Request)
		if err != nil {
			response.BadRequest(c, "Failed to read request body")
			c.Abort()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		resp, err := svc.Execute(c.Request.Context(), service.Request{
			Method:        c.Request.Method,
			RouteTemplate: route,
			Header:        c.Request.Header,
			Body:          body,
		}, func(ctx context.Context) (*service.Response, error) {
			original := c.Writer
			buffered := &ginBufferedWriter{ResponseWriter: original, buf: newResponseBuffer()}
			c.Writer = buffered
			c.Request = c.Request.WithContext(ctx)
			defer func() { c.Writer = original }()

			c.Next()
			return buffered.buf.response(), nil
		})
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		writeResponse(c.Writer, resp)
		c.Abort()
	}
}
