package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/totalrecall/internal/aiconnectors"
	"github.com/totalrecall/internal/chat"
	"github.com/totalrecall/internal/conversations"
	"github.com/totalrecall/internal/settings"
)

func invalidBody() *echo.HTTPError {
	return badRequest("Invalid request body")
}

func badRequest(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, message)
}

// toHTTPError maps domain errors onto responses. Anything unrecognised is
// logged and reported as failure without its cause.
func toHTTPError(err error, failure string) *echo.HTTPError {
	switch {
	case errors.Is(err, conversations.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
	case errors.Is(err, conversations.ErrTagNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Tag not found")
	case errors.Is(err, aiconnectors.ErrUnsupportedProvider):
		return badRequest("Invalid provider")
	case errors.Is(err, chat.ErrEmptyPrompt):
		return badRequest("prompt is required")
	case errors.Is(err, settings.ErrMissingUserID):
		return badRequest("userId is required")
	}

	log.Error().Err(err).Msg(failure)
	return echo.NewHTTPError(http.StatusInternalServerError, failure)
}
