package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"knowledge-agent/web/types"

	"go.uber.org/zap"
)

// Client talks to the knowledge-agent chat API. One client may serve many
// sessions; each streaming turn gets its own Session with its own decoder
// buffer and accumulators.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(baseURL string, logger *zap.Logger) *Client {
	// No client-level timeout: streaming turns live as long as the server
	// keeps generating. Callers bound a turn by cancelling its context.
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// NewWithHTTPClient is used by tests and callers that need custom transport
// behavior.
func NewWithHTTPClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// StreamChat starts one streaming chat turn. The returned session is already
// running; consume Events() and use Result or Wait for the terminal outcome.
// Starting a second turn for the same conversation while one is live is the
// caller's responsibility to prevent.
func (c *Client) StreamChat(ctx context.Context, request types.ChatRequest) (*Session, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	session := newSession(request, c.logger, cancel)

	doRequest := func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(jsonBody))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		return c.httpClient.Do(req)
	}

	go session.run(ctx, doRequest)
	return session, nil
}

// SendMessage is the non-streaming equivalent of a fully drained session.
func (c *Client) SendMessage(ctx context.Context, request types.ChatRequest) (*types.ChatResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	var response types.ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat/", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetTokenUsage fetches the usage snapshot for a conversation and model. On
// failure it returns an error, never a partial usage object.
func (c *Client) GetTokenUsage(ctx context.Context, conversationID, model string) (*types.TokenUsage, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	path := fmt.Sprintf("/chat/conversations/%s/token-usage", url.PathEscape(conversationID))
	if model != "" {
		path += "?model=" + url.QueryEscape(model)
	}

	var usage types.TokenUsage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// ListConversations returns the conversation index, newest first.
func (c *Client) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	var conversations []types.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/chat/conversations/", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// GetConversation returns one conversation with its ordered messages.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*types.Conversation, error) {
	var conversation types.Conversation
	path := "/chat/conversations/" + url.PathEscape(conversationID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// UpdateConversation patches mutable conversation fields (title, summary).
func (c *Client) UpdateConversation(ctx context.Context, conversationID string, update map[string]string) (*types.Conversation, error) {
	var conversation types.Conversation
	path := "/chat/conversations/" + url.PathEscape(conversationID)
	if err := c.doJSON(ctx, http.MethodPatch, path, update, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	path := "/chat/conversations/" + url.PathEscape(conversationID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// SubmitFeedback records thumbs up/down on a persisted assistant message.
func (c *Client) SubmitFeedback(ctx context.Context, conversationID, messageID string, feedback types.Feedback) error {
	path := fmt.Sprintf("/chat/conversations/%s/messages/%s/feedback",
		url.PathEscape(conversationID), url.PathEscape(messageID))
	return c.doJSON(ctx, http.MethodPost, path, feedback, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
