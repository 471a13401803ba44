package handler

import (
	"errors"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/mockreceiver/internal/infrastructure/sink"
	"github.com/akave-ai/mockreceiver/internal/model"
	"github.com/akave-ai/mockreceiver/internal/response"
)

const maxLoggedBody = 2048

// FailureHandler is the mock receiver for the watcher's stale-entity reports.
// It keeps nothing between requests.
type FailureHandler struct {
	Sink   sink.Sink
	Logger zerolog.Logger
}

// LogFailure prints a JSON body to the sink (POST /log-failure).
func (h *FailureHandler) LogFailure(c echo.Context) error {
	req := c.Request()
	contentType := req.Header.Get(echo.HeaderContentType)
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	log := h.Logger.With().Str("request_id", requestID).Logger()

	if !model.IsJSONContentType(contentType) {
		log.Debug().Str("content_type", contentType).Msg("rejected non-JSON body")
		return response.BadRequest(c, response.MsgJSONExpected)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		// body limit exceeded
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		log.Warn().Err(err).Msg("read body")
		return response.BadRequest(c, response.MsgMalformedJSON)
	}

	payload, err := model.Parse(contentType, body)
	if err != nil {
		log.Warn().Err(err).Str("body", preview(body)).Msg("rejected malformed JSON")
		return response.BadRequest(c, response.MsgMalformedJSON)
	}
	payload.RequestID = requestID

	if err := h.Sink.Insert(payload); err != nil {
		log.Error().Err(err).Msg("sink insert failed")
		return response.InternalError(c, response.MsgSinkFailed)
	}

	txn := newrelic.FromContext(req.Context())
	txn.AddAttribute("payload_bytes", len(body))
	txn.AddAttribute("request_id", requestID)

	ev := log.Info().Int("bytes", len(body))
	if ids, ok := payload.StaleEntities(); ok {
		ev = ev.Int("stale_entities", len(ids))
		txn.AddAttribute("stale_entity_count", len(ids))
	}
	ev.Msg("payload logged")

	return response.Logged(c)
}

func preview(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}

// RequireJSON answers 400 before anything reads the body, so a non-JSON
// request gets that answer whatever its size.
func RequireJSON(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !model.IsJSONContentType(c.Request().Header.Get(echo.HeaderContentType)) {
			return response.BadRequest(c, response.MsgJSONExpected)
		}
		return next(c)
	}
}

// Register mounts the receiver's route on e. bodyLimit is echo size syntax;
// empty leaves bodies unlimited.
func (h *FailureHandler) Register(e *echo.Echo, bodyLimit string) {
	mws := []echo.MiddlewareFunc{RequireJSON}
	if bodyLimit != "" {
		mws = append(mws, middleware.BodyLimit(bodyLimit))
	}
	e.POST("/log-failure", h.LogFailure, mws...)
}
