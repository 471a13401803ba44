// Package observability wires the New Relic agent into the echo server.
package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/akave-ai/mockreceiver/internal/config"
)

const shutdownTimeout = 5 * time.Second

// NewRelic creates the agent application. Without a license key the
// application is created disabled and never connects.
func NewRelic(cfg *config.ObservabilityConfig) (*newrelic.Application, error) {
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.ServiceName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigEnabled(cfg.NewRelicEnabled()),
		newrelic.ConfigDistributedTracerEnabled(cfg.NewRelic.DistributedTracingEnabled),
		func(c *newrelic.Config) {
			c.Labels = map[string]string{"env": cfg.Environment}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("new relic application: %w", err)
	}
	return app, nil
}

// Shutdown flushes pending data. Safe on a nil application.
func Shutdown(app *newrelic.Application) {
	if app == nil {
		return
	}
	app.Shutdown(shutdownTimeout)
}

// Middleware starts a web transaction per request and stores it in the
// request context, where handlers pick it up with newrelic.FromContext.
// A nil app yields nil transactions, whose methods are no-ops.
func Middleware(app *newrelic.Application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			txn := app.StartTransaction(req.Method + " " + c.Path())
			defer txn.End()

			txn.SetWebRequestHTTP(req)
			c.Response().Writer = txn.SetWebResponse(c.Response().Writer)
			c.SetRequest(req.WithContext(newrelic.NewContext(req.Context(), txn)))

			err := next(c)
			if shouldNotice(err) {
				txn.NoticeError(err)
			}
			return err
		}
	}
}

// shouldNotice keeps client errors (echo 4xx such as 404/405/413) out of the
// APM error rate.
func shouldNotice(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code >= http.StatusInternalServerError
	}
	return true
}
