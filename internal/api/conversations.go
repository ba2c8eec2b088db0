package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/totalrecall/internal/chat"
	"github.com/totalrecall/internal/conversations"
	"github.com/totalrecall/pkg/models"
)

// conversationResponse is a conversation with its id repeated under the
// conversationId key clients send back
type conversationResponse struct {
	ConversationID string `json:"conversationId"`
	*models.Conversation
}

type mutationResponse struct {
	Message             string               `json:"message"`
	UpdatedConversation *models.Conversation `json:"updatedConversation"`
}

type ConversationHandler struct {
	repo *conversations.Repository
	chat *chat.Service
}

func NewConversationHandler(repo *conversations.Repository, svc *chat.Service) *ConversationHandler {
	return &ConversationHandler{repo: repo, chat: svc}
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return badRequest("conversationId is required")
	}
	return nil
}

func mutated(c echo.Context, message string, conv *models.Conversation) error {
	return c.JSON(http.StatusOK, mutationResponse{Message: message, UpdatedConversation: conv})
}

// Converse starts a conversation or continues the one named by conversationId
func (h *ConversationHandler) Converse(c echo.Context) error {
	var body struct {
		Prompt         string `json:"prompt"`
		Provider       string `json:"provider"`
		ConversationID string `json:"conversationId"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}

	conv, created, err := h.chat.Converse(c.Request().Context(), chat.Request{
		Prompt:         body.Prompt,
		Provider:       body.Provider,
		ConversationID: strings.TrimSpace(body.ConversationID),
	})
	if err != nil {
		return toHTTPError(err, "Failed to process conversation")
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, conversationResponse{ConversationID: conv.ID, Conversation: conv})
}

func (h *ConversationHandler) Get(c echo.Context) error {
	id := c.QueryParam("conversationId")
	if err := requireID(id); err != nil {
		return err
	}
	conv, err := h.repo.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "Failed to get conversation")
	}
	return c.JSON(http.StatusOK, conversationResponse{ConversationID: conv.ID, Conversation: conv})
}

func (h *ConversationHandler) List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest("Invalid limit")
		}
		limit = n
	}

	list, err := h.repo.List(c.Request().Context(), limit)
	if err != nil {
		return toHTTPError(err, "Failed to list conversations")
	}
	if list == nil {
		list = []*models.Conversation{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": list})
}

// Delete accepts the id in the body or the query string
func (h *ConversationHandler) Delete(c echo.Context) error {
	var body struct {
		ConversationID string `json:"conversationId" query:"conversationId"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}
	if err := requireID(body.ConversationID); err != nil {
		return err
	}
	if err := h.repo.Delete(c.Request().Context(), body.ConversationID); err != nil {
		return toHTTPError(err, "Failed to delete conversation")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

func (h *ConversationHandler) AddTag(c echo.Context) error {
	var body struct {
		ConversationID string `json:"conversationId"`
		Tag            string `json:"tag"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}
	if err := requireID(body.ConversationID); err != nil {
		return err
	}
	if body.Tag == "" {
		return badRequest("tag is required")
	}

	conv, err := h.repo.AppendTag(c.Request().Context(), body.ConversationID, body.Tag)
	if err != nil {
		return toHTTPError(err, "Failed to add tag")
	}
	return mutated(c, "Tag added successfully", conv)
}

func (h *ConversationHandler) EditTag(c echo.Context) error {
	var body struct {
		ConversationID string `json:"conversationId"`
		OldTag         string `json:"oldTag"`
		NewTag         string `json:"newTag"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}
	if err := requireID(body.ConversationID); err != nil {
		return err
	}
	if body.OldTag == "" || body.NewTag == "" {
		return badRequest("oldTag and newTag are required")
	}

	conv, err := h.repo.EditTag(c.Request().Context(), body.ConversationID, body.OldTag, body.NewTag)
	if err != nil {
		return toHTTPError(err, "Failed to edit tag")
	}
	return mutated(c, "Tag edited successfully", conv)
}

func (h *ConversationHandler) DeleteTag(c echo.Context) error {
	var body struct {
		ConversationID string `json:"conversationId"`
		Tag            string `json:"tag"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}
	if err := requireID(body.ConversationID); err != nil {
		return err
	}
	if body.Tag == "" {
		return badRequest("tag is required")
	}

	conv, err := h.repo.DeleteTag(c.Request().Context(), body.ConversationID, body.Tag)
	if err != nil {
		return toHTTPError(err, "Failed to delete tag")
	}
	return mutated(c, "Tag deleted successfully", conv)
}

// ReplaceTags overwrites the whole tag list; an empty list clears it
func (h *ConversationHandler) ReplaceTags(c echo.Context) error {
	var body struct {
		ConversationID string    `json:"conversationId"`
		Tags           *[]string `json:"tags"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}
	if err := requireID(body.ConversationID); err != nil {
		return err
	}
	if body.Tags == nil {
		return badRequest("tags is required")
	}

	conv, err := h.repo.ReplaceTags(c.Request().Context(), body.ConversationID, *body.Tags)
	if err != nil {
		return toHTTPError(err, "Failed to update tags")
	}
	return mutated(c, "Tags updated successfully", conv)
}

func (h *ConversationHandler) Rename(c echo.Context) error {
	var body struct {
		ConversationID string  `json:"conversationId"`
		NewName        *string `json:"newName"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}
	if err := requireID(body.ConversationID); err != nil {
		return err
	}
	if body.NewName == nil {
		return badRequest("newName is required")
	}

	conv, err := h.repo.Rename(c.Request().Context(), body.ConversationID, *body.NewName)
	if err != nil {
		return toHTTPError(err, "Failed to update conversation name")
	}
	return mutated(c, "Conversation name updated successfully", conv)
}

// AddMessage appends a client supplied message without calling a provider.
// Structured content is flattened to text before it is stored.
func (h *ConversationHandler) AddMessage(c echo.Context) error {
	var body struct {
		ConversationID string                 `json:"conversationId"`
		Message        *models.InboundMessage `json:"message"`
	}
	if err := c.Bind(&body); err != nil {
		return invalidBody()
	}
	if err := requireID(body.ConversationID); err != nil {
		return err
	}
	if body.Message == nil {
		return badRequest("message is required")
	}
	if !body.Message.Role.Valid() {
		return badRequest("Invalid message role")
	}
	msg := body.Message.Normalize()
	if strings.TrimSpace(msg.Content) == "" {
		return badRequest("message content is required")
	}

	conv, err := h.repo.AppendMessage(c.Request().Context(), body.ConversationID, msg)
	if err != nil {
		return toHTTPError(err, "Failed to add message")
	}
	return mutated(c, "Message added successfully", conv)
}
