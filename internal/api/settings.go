package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/totalrecall/internal/settings"
)

type SettingsHandler struct {
	repo *settings.Repository
}

func NewSettingsHandler(repo *settings.Repository) *SettingsHandler {
	return &SettingsHandler{repo: repo}
}

// Update creates the settings record of a user or replaces its settings
func (h *SettingsHandler) Update(c echo.Context) error {
	var body struct {
		UserID   string                 `json:"userId"`
		Settings map[string]interface{} `json:"settings"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}

	rec, created, err := h.repo.Upsert(c.Request().Context(), body.UserID, body.Settings)
	if err != nil {
		return toHTTPError(err, "Failed to update user settings")
	}

	status, message := http.StatusOK, "User settings updated"
	if created {
		status, message = http.StatusCreated, "User created"
	}
	return c.JSON(status, map[string]interface{}{
		"message":  message,
		"userId":   rec.UserID,
		"settings": rec.Settings,
	})
}
