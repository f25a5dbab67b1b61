package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sangkips/idempotency-gateway/internal/application/service"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/dto/response"
	"github.com/sangkips/idempotency-gateway/pkg/apperror"
)

// HTTPIdempotency wraps a net/http handler. Register it per route on an
// http.ServeMux so r.Pattern carries the route template.
func HTTPIdempotency(svc *service.IdempotencyService, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !svc.Protects(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		body, err := readBody(r)
		if err != nil {
			writeHTTPError(w, r, apperror.NewBadRequestError("Failed to read request body"))
			return
		}

		resp, err := svc.Execute(r.Context(), service.Request{
			Method:        r.Method,
			RouteTemplate: routeTemplate(r),
			Header:        r.Header,
			Body:          body,
		}, func(ctx context.Context) (*service.Response, error) {
			buf := newResponseBuffer()
			next.ServeHTTP(buf, r.WithContext(ctx))
			return buf.response(), nil
		})
		if err != nil {
			writeHTTPError(w, r, err)
			return
		}
		writeResponse(w, resp)
	})
}

// routeTemplate strips the method and host from a ServeMux pattern such as
// "POST example.com/orders/{id}"
func routeTemplate(r *http.Request) string {
	pattern := r.Pattern
	if pattern == "" {
		return r.URL.Path
	}
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimLeft(pattern[i+1:], " \t")
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}

func writeHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.GetAppError(err)
	if v := response.RetryAfter(appErr); v != "" {
		w.Header().Set("Retry-After", v)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.Code)
	_ = json.NewEncoder(w).Encode(response.NewErrorBody(appErr, response.NewMeta(r.Header.Get("X-Request-ID"))))
}
