package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"knowledge-agent/database"
	"knowledge-agent/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	store  *database.PostgresStore
	logger *zap.Logger
}

func NewConversationHandler(store *database.PostgresStore, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, logger: logger}
}

func (h *ConversationHandler) List(c *gin.Context) {
	conversations, err := h.store.GetConversations(c.Request.Context())
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not load conversations", h.logger)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationID"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	conversation, err := h.store.GetConversationByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithClientError(c, http.StatusNotFound, "Conversation not found")
			return
		}
		respondWithError(c, http.StatusInternalServerError, err, "Could not load conversation", h.logger)
		return
	}

	messages, err := h.store.GetMessagesByConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not load messages", h.logger)
		return
	}
	conversation.Messages = messages

	c.JSON(http.StatusOK, conversation)
}

type updateConversationRequest struct {
	Title   *string `json:"title"`
	Summary *string `json:"summary"`
}

func (h *ConversationHandler) Update(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationID"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Title == nil && req.Summary == nil {
		respondWithClientError(c, http.StatusBadRequest, "Nothing to update")
		return
	}

	if err := h.store.UpdateConversation(c.Request.Context(), conversationID, req.Title, req.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithClientError(c, http.StatusNotFound, "Conversation not found")
			return
		}
		respondWithError(c, http.StatusInternalServerError, err, "Could not update conversation", h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationID"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	if err := h.store.DeleteConversation(c.Request.Context(), conversationID); err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not delete conversation", h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

// Feedback records a thumbs up or down on an assistant message.
func (h *ConversationHandler) Feedback(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("messageID"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid message ID")
		return
	}

	var feedback types.Feedback
	if err := c.ShouldBindJSON(&feedback); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}

	if err := h.store.SetMessageFeedback(c.Request.Context(), messageID, feedback.IsPositive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithClientError(c, http.StatusNotFound, "Message not found")
			return
		}
		respondWithError(c, http.StatusInternalServerError, err, "Could not save feedback", h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}
