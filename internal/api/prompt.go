package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// sendPrompt answers a single prompt without storing anything. The reply
// text is returned as a JSON string.
func (s *Server) sendPrompt(c echo.Context) error {
	var body struct {
		Prompt   string `json:"prompt"`
		Provider string `json:"provider"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}

	text, err := s.deps.Chat.SendPrompt(c.Request().Context(), body.Prompt, body.Provider)
	if err != nil {
		return toHTTPError(err, "Failed to send prompt")
	}
	return c.JSON(http.StatusOK, text)
}

func (s *Server) fetchQuote(c echo.Context) error {
	if s.deps.Quotes == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Quotes are not configured")
	}
	payload, err := s.deps.Quotes.Fetch(c.Request().Context())
	if err != nil {
		return toHTTPError(err, "Failed to fetch quote")
	}
	return c.JSONBlob(http.StatusOK, payload)
}
