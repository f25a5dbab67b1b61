package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/sangkips/idempotency-gateway/internal/application/service"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/dto/response"
	"github.com/sangkips/idempotency-gateway/pkg/apperror"
)

// EchoIdempotency is the echo flavour of Idempotency. The route template comes
// from c.Path().
func EchoIdempotency(svc *service.IdempotencyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !svc.Protects(req.Method) {
				return next(c)
			}

			body, err := readBody(req)
			if err != nil {
				return echoError(c, apperror.NewBadRequestError("Failed to read request body"))
			}

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			res := c.Response()
			original := res.Writer
			resp, err := svc.Execute(req.Context(), service.Request{
				Method:        req.Method,
				RouteTemplate: route,
				Header:        req.Header,
				Body:          body,
			}, func(ctx context.Context) (*service.Response, error) {
				buf := newResponseBuffer()
				res.Writer = buf
				c.SetRequest(req.WithContext(ctx))
				defer func() { res.Writer = original }()

				if err := next(c); err != nil {
					c.Error(err)
				}
				return buf.response(), nil
			})
			if err != nil {
				return echoError(c, err)
			}

			// echo marks the response committed while the handler writes into
			// the buffer, so the final copy goes straight to the real writer.
			if res.Committed {
				writeResponse(original, resp)
				return nil
			}
			for k, vv := range resp.Header {
				res.Header()[k] = append([]string(nil), vv...)
			}
			res.WriteHeader(resp.StatusCode)
			_, err = res.Write(resp.Body)
			return err
		}
	}
}

func echoError(c echo.Context, err error) error {
	appErr := apperror.GetAppError(err)
	if v := response.RetryAfter(appErr); v != "" {
		c.Response().Header().Set("Retry-After", v)
	}
	return c.JSON(appErr.Code, response.NewErrorBody(appErr, response.NewMeta(c.Request().Header.Get("X-Request-ID"))))
}
