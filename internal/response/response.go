package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Bodies callers of /log-failure match on.
const (
	MsgLogged        = "Logged"
	MsgJSONExpected  = "Bad Request: JSON expected"
	MsgMalformedJSON = "Bad Request: malformed JSON"
	MsgSinkFailed    = "Internal Server Error: could not log payload"
)

// Text sends a plain-text response.
func Text(c echo.Context, status int, message string) error {
	return c.String(status, message)
}

// Logged sends 200 "Logged".
func Logged(c echo.Context) error {
	return Text(c, http.StatusOK, MsgLogged)
}

// BadRequest sends 400 with message.
func BadRequest(c echo.Context, message string) error {
	return Text(c, http.StatusBadRequest, message)
}

// InternalError sends 500 with message.
func InternalError(c echo.Context, message string) error {
	return Text(c, http.StatusInternalServerError, message)
}
