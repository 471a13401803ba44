package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/akave-ai/mockreceiver/internal/infrastructure/sink"
	"github.com/akave-ai/mockreceiver/internal/model"
	"github.com/akave-ai/mockreceiver/internal/response"
)

type memSink struct {
	mu       sync.Mutex
	payloads []model.Payload
	err      error
}

func (s *memSink) Insert(p model.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *memSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func serve(t *testing.T, h *FailureHandler, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/log-failure", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	if err := h.LogFailure(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestLogFailure_PrintsJSONAndRespondsLogged(t *testing.T) {
	var out bytes.Buffer
	h := &FailureHandler{Sink: sink.NewConsole(&out), Logger: zerolog.Nop()}

	rec := serve(t, h, echo.MIMEApplicationJSON, `{"entity": "user:42", "reason": "stale"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != response.MsgLogged {
		t.Fatalf("expected body %q, got %q", response.MsgLogged, rec.Body.String())
	}
	printed := out.String()
	for _, want := range []string{sink.HeaderLine, sink.FooterLine, `"entity": "user:42"`, `"reason": "stale"`} {
		if !strings.Contains(printed, want) {
			t.Fatalf("expected console output to contain %q, got\n%s", want, printed)
		}
	}
}

func TestLogFailure_AnyJSONValue(t *testing.T) {
	for _, body := range []string{`[]`, `"stale"`, `3.14`, `null`, `{"stale_entities":["a","b"]}`} {
		buf := &memSink{}
		h := &FailureHandler{Sink: buf, Logger: zerolog.Nop()}
		rec := serve(t, h, "application/json; charset=utf-8", body)
		if rec.Code != http.StatusOK || rec.Body.String() != response.MsgLogged {
			t.Errorf("body %s: expected 200 Logged, got %d %q", body, rec.Code, rec.Body.String())
		}
		if buf.Len() != 1 {
			t.Errorf("body %s: expected one payload in sink, got %d", body, buf.Len())
		}
	}
}

func TestLogFailure_RejectsNonJSONContentType(t *testing.T) {
	for _, ct := range []string{"text/plain", "", "application/x-www-form-urlencoded"} {
		var out bytes.Buffer
		h := &FailureHandler{Sink: sink.NewConsole(&out), Logger: zerolog.Nop()}

		rec := serve(t, h, ct, "not json")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("content type %q: expected %d, got %d", ct, http.StatusBadRequest, rec.Code)
		}
		if rec.Body.String() != response.MsgJSONExpected {
			t.Fatalf("content type %q: expected body %q, got %q", ct, response.MsgJSONExpected, rec.Body.String())
		}
		if out.Len() != 0 {
			t.Fatalf("content type %q: expected no console output, got %q", ct, out.String())
		}
	}
}

func TestLogFailure_JSONBodyWithWrongContentType(t *testing.T) {
	buf := &memSink{}
	h := &FailureHandler{Sink: buf, Logger: zerolog.Nop()}

	rec := serve(t, h, "text/plain", `{"entity":"user:42"}`)

	if rec.Code != http.StatusBadRequest || rec.Body.String() != response.MsgJSONExpected {
		t.Fatalf("expected 400 %q, got %d %q", response.MsgJSONExpected, rec.Code, rec.Body.String())
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing in sink, got %d", buf.Len())
	}
}

func TestLogFailure_MalformedJSON(t *testing.T) {
	for _, body := range []string{`{"a":}`, ``, `{"a":1}garbage`} {
		var out bytes.Buffer
		h := &FailureHandler{Sink: sink.NewConsole(&out), Logger: zerolog.Nop()}

		rec := serve(t, h, echo.MIMEApplicationJSON, body)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected %d, got %d", body, http.StatusBadRequest, rec.Code)
		}
		if rec.Body.String() != response.MsgMalformedJSON {
			t.Fatalf("body %q: expected %q, got %q", body, response.MsgMalformedJSON, rec.Body.String())
		}
		if out.Len() != 0 {
			t.Fatalf("body %q: expected no console output, got %q", body, out.String())
		}
	}
}

func TestLogFailure_SinkError(t *testing.T) {
	h := &FailureHandler{Sink: &memSink{err: errors.New("stdout closed")}, Logger: zerolog.Nop()}

	rec := serve(t, h, echo.MIMEApplicationJSON, `{}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if rec.Body.String() != response.MsgSinkFailed {
		t.Fatalf("expected body %q, got %q", response.MsgSinkFailed, rec.Body.String())
	}
}

func TestLogFailure_SetsRequestIDOnPayload(t *testing.T) {
	buf := &memSink{}
	h := &FailureHandler{Sink: buf, Logger: zerolog.Nop()}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/log-failure", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set(echo.HeaderXRequestID, "req-1")

	if err := h.LogFailure(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if buf.Len() != 1 || buf.payloads[0].RequestID != "req-1" {
		t.Fatalf("expected payload with request id req-1, got %+v", buf.payloads)
	}
}

func TestLogFailure_LogsWatcherReport(t *testing.T) {
	var logs, out bytes.Buffer
	h := &FailureHandler{Sink: sink.NewConsole(&out), Logger: zerolog.New(&logs)}

	body := `{"stale_entities":["user:1","user:2"]}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/log-failure", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set(echo.HeaderXRequestID, "req-7")

	if err := h.LogFailure(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(logs.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", logs.String(), err)
	}
	for k, want := range map[string]any{
		"level":          "info",
		"message":        "payload logged",
		"request_id":     "req-7",
		"bytes":          float64(len(body)),
		"stale_entities": float64(2),
	} {
		if line[k] != want {
			t.Fatalf("log field %s: expected %v, got %v", k, want, line[k])
		}
	}
	if strings.Contains(out.String(), "payload logged") {
		t.Fatal("diagnostic log leaked into the console sink")
	}
}

func TestLogFailure_LogsWithoutStaleCountForOtherShapes(t *testing.T) {
	var logs bytes.Buffer
	h := &FailureHandler{Sink: &memSink{}, Logger: zerolog.New(&logs)}

	serve(t, h, echo.MIMEApplicationJSON, `{"entity":"user:42"}`)

	var line map[string]any
	if err := json.Unmarshal(logs.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", logs.String(), err)
	}
	if line["message"] != "payload logged" {
		t.Fatalf("expected payload logged, got %v", line["message"])
	}
	if _, ok := line["stale_entities"]; ok {
		t.Fatalf("stale_entities should be absent, got %v", line["stale_entities"])
	}
}

func TestLogFailure_MalformedJSONLogsWarning(t *testing.T) {
	var logs bytes.Buffer
	h := &FailureHandler{Sink: &memSink{}, Logger: zerolog.New(&logs)}

	serve(t, h, echo.MIMEApplicationJSON, `{"a":}`)

	var line map[string]any
	if err := json.Unmarshal(logs.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", logs.String(), err)
	}
	if line["level"] != "warn" || line["body"] != `{"a":}` {
		t.Fatalf("expected a warning carrying the body, got %v", line)
	}
}

func TestRequireJSON(t *testing.T) {
	e := echo.New()
	next := func(c echo.Context) error { return response.Logged(c) }

	for ct, want := range map[string]int{
		"application/json":    http.StatusOK,
		"application/ld+json": http.StatusOK,
		"text/plain":          http.StatusBadRequest,
		"":                    http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodPost, "/log-failure", strings.NewReader("{}"))
		if ct != "" {
			req.Header.Set(echo.HeaderContentType, ct)
		}
		rec := httptest.NewRecorder()
		if err := RequireJSON(next)(e.NewContext(req, rec)); err != nil {
			t.Fatalf("content type %q: unexpected error %v", ct, err)
		}
		if rec.Code != want {
			t.Fatalf("content type %q: expected %d, got %d", ct, want, rec.Code)
		}
	}
}
