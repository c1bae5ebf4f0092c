package handlers

import (
	"net/http"

	"knowledge-agent/config"
	"knowledge-agent/database"
	apperrors "knowledge-agent/errors"
	"knowledge-agent/stream"
	"knowledge-agent/tokens"
	"knowledge-agent/web/services"
	"knowledge-agent/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatHandler struct {
	cfg      *config.Config
	pipeline *services.Pipeline
	store    *database.PostgresStore
	counter  *tokens.Counter
	logger   *zap.Logger
}

func NewChatHandler(
	cfg *config.Config,
	pipeline *services.Pipeline,
	store *database.PostgresStore,
	counter *tokens.Counter,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		counter:  counter,
		logger:   logger,
	}
}

// StreamChat answers a chat request as an SSE stream: one "data: <json>"
// line per event, ending with exactly one done or error event.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := req.Validate(); err != nil {
		respondWithClientError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	writer := stream.NewWriter(c.Writer)
	sink := func(e stream.Event) error {
		return writer.Send(ctx, e)
	}

	result, err := h.pipeline.Run(ctx, req, sink)
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Debug("Client disconnected mid-stream", zap.Error(err))
			return
		}
		h.logger.Error("Chat turn failed", zap.Error(err))
		if sendErr := writer.Send(ctx, stream.ErrorEvent{Message: userFacingError(err)}); sendErr != nil {
			h.logger.Debug("Could not deliver error event", zap.Error(sendErr))
		}
		return
	}

	if err := writer.Send(ctx, stream.DoneEvent{MessageID: result.MessageID.String()}); err != nil {
		h.logger.Debug("Could not deliver done event", zap.Error(err))
	}
}

// SendMessage answers a chat request synchronously: the same pipeline as the
// streaming endpoint, with the fully drained result returned as one JSON body.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := req.Validate(); err != nil {
		respondWithClientError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.pipeline.Run(c.Request.Context(), req, nil)
	if err != nil {
		switch {
		case apperrors.IsNotFound(err):
			respondWithClientError(c, http.StatusNotFound, "Conversation not found")
		case apperrors.IsInvalidInput(err):
			respondWithClientError(c, http.StatusBadRequest, err.Error())
		default:
			respondWithError(c, http.StatusInternalServerError, err, userFacingError(err), h.logger)
		}
		return
	}

	c.JSON(http.StatusOK, types.ChatResponse{
		MessageID:      result.MessageID.String(),
		ConversationID: result.ConversationID.String(),
		Response:       result.Answer,
		Sources:        result.Sources,
	})
}

// TokenUsage reports how much of the model context window a conversation
// already consumes.
func (h *ChatHandler) TokenUsage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationID"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	exists, err := h.store.ConversationExists(c.Request.Context(), conversationID)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not load conversation", h.logger)
		return
	}
	if !exists {
		respondWithClientError(c, http.StatusNotFound, "Conversation not found")
		return
	}

	messages, err := h.store.GetMessagesByConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not load messages", h.logger)
		return
	}

	usage, err := tokens.Compute(h.counter, messages, h.cfg.ContextLength)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not compute token usage", h.logger,
			zap.String("conversation_id", conversationID.String()),
			zap.String("model", c.Query("model")))
		return
	}

	c.JSON(http.StatusOK, usage)
}

// userFacingError hides internals while keeping actionable problems visible.
func userFacingError(err error) string {
	if apperrors.IsNotFound(err) || apperrors.IsInvalidInput(err) {
		return err.Error()
	}
	return "Failed to generate a response. Please try again."
}
