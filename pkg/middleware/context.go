package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/appcontext"
)

const (
	// HeaderUserID is honored when authentication is disabled (local dev/tests)
	HeaderUserID = "X-User-ID"
)

func Context(authEnabled bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())

			if !authEnabled {
				if userID := req.Header.Get(HeaderUserID); userID != "" {
					ctx = appcontext.SetUserID(ctx, userID)
				}
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
