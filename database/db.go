package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "knowledge-agent/errors"
	"knowledge-agent/web/types"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, apperrors.WrapError(err, "open database")
	}
	if err := db.Ping(); err != nil {
		return nil, apperrors.WrapError(err, "ping database")
	}
	return &PostgresStore{DB: db}, nil
}

// EnsureSchema creates the required tables if they do not already exist.
// embeddingDims sizes the pgvector column for the knowledge-base chunks.
func (s *PostgresStore) EnsureSchema(ctx context.Context, embeddingDims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            title TEXT NOT NULL DEFAULT '',
            summary TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
            role TEXT NOT NULL,
            content TEXT NOT NULL,
            rendered TEXT NOT NULL DEFAULT '',
            model_used TEXT NOT NULL DEFAULT '',
            suggested_questions TEXT[] DEFAULT '{}'::TEXT[],
            feedback_positive BOOLEAN,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created_at ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS message_sources (
            message_id UUID REFERENCES messages(id) ON DELETE CASCADE,
            ordinal INT NOT NULL,
            chunk_id TEXT NOT NULL,
            source_type TEXT NOT NULL,
            source_id TEXT NOT NULL,
            source_title TEXT NOT NULL DEFAULT '',
            section_title TEXT NOT NULL DEFAULT '',
            distance DOUBLE PRECISION NOT NULL DEFAULT 0,
            PRIMARY KEY (message_id, ordinal)
        )`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_chunks (
            id UUID PRIMARY KEY,
            source_type TEXT NOT NULL,
            source_id TEXT NOT NULL,
            source_title TEXT NOT NULL DEFAULT '',
            section_title TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL,
            embedding vector(%d),
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`, embeddingDims),
		`CREATE INDEX IF NOT EXISTS idx_kb_chunks_source ON kb_chunks(source_type, source_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "schema statement failed: %v", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, title string) (uuid.UUID, error) {
	conversationID := uuid.New()
	now := time.Now()
	if title == "" {
		title = fmt.Sprintf("Chat from %s", now.Format("January 2, 2006"))
	}

	query := `
        INSERT INTO conversations (id, title, created_at, updated_at)
        VALUES ($1, $2, $3, $4)
    `
	_, err := s.DB.ExecContext(ctx, query, conversationID, title, now, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversationID, nil
}

func (s *PostgresStore) GetConversations(ctx context.Context) ([]types.Conversation, error) {
	query := `
		SELECT id, title, summary, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []types.Conversation
	for rows.Next() {
		var conv types.Conversation
		var id uuid.UUID
		if err := rows.Scan(&id, &conv.Title, &conv.Summary, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conv.ID = id.String()
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *PostgresStore) GetConversationByID(ctx context.Context, conversationID uuid.UUID) (types.Conversation, error) {
	query := `
		SELECT id, title, summary, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`
	var conv types.Conversation
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx, query, conversationID).
		Scan(&id, &conv.Title, &conv.Summary, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return types.Conversation{}, err
	}
	conv.ID = id.String()
	return conv, nil
}

// UpdateConversation patches title and/or summary; nil fields are untouched.
func (s *PostgresStore) UpdateConversation(ctx context.Context, conversationID uuid.UUID, title, summary *string) error {
	query := `
		UPDATE conversations
		SET title = COALESCE($1, title),
		    summary = COALESCE($2, summary),
		    updated_at = $3
		WHERE id = $4
	`
	res, err := s.DB.ExecContext(ctx, query, title, summary, time.Now(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	return err
}

// CreateMessage appends one message with its citations in a single
// transaction and touches the owning conversation. Messages are append-only;
// only feedback may change afterwards.
func (s *PostgresStore) CreateMessage(ctx context.Context, conversationID uuid.UUID, msg types.Message) error {
	messageUUID, err := uuid.Parse(msg.ID)
	if err != nil {
		return fmt.Errorf("invalid message ID: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	query := `
		INSERT INTO messages (id, conversation_id, role, content, rendered, model_used, suggested_questions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(ctx, query,
		messageUUID, conversationID, msg.Role, msg.Content, msg.Rendered,
		msg.ModelUsed, pq.Array(msg.SuggestedQuestions), now)
	if err != nil {
		return err
	}

	for _, source := range msg.Sources {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_sources (message_id, ordinal, chunk_id, source_type, source_id, source_title, section_title, distance)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, messageUUID, source.Index, source.ChunkID, source.SourceType,
			source.SourceID, source.SourceTitle, source.SectionTitle, source.Distance)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, now, conversationID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) GetMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	query := `
		SELECT id, role, content, rendered, model_used, suggested_questions, feedback_positive, created_at
		FROM messages
		WHERE conversation_id = $1 ORDER BY created_at ASC
	`
	rows, err := s.DB.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	index := make(map[string]int)
	for rows.Next() {
		var msg types.Message
		var id uuid.UUID
		var questions []string
		var feedback sql.NullBool
		if err := rows.Scan(&id, &msg.Role, &msg.Content, &msg.Rendered, &msg.ModelUsed,
			pq.Array(&questions), &feedback, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.ID = id.String()
		if len(questions) > 0 {
			msg.SuggestedQuestions = questions
		}
		if feedback.Valid {
			msg.Feedback = &types.Feedback{IsPositive: feedback.Bool}
		}
		index[msg.ID] = len(messages)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sourceRows, err := s.DB.QueryContext(ctx, `
		SELECT ms.message_id, ms.ordinal, ms.chunk_id, ms.source_type, ms.source_id, ms.source_title, ms.section_title, ms.distance
		FROM message_sources ms
		JOIN messages m ON m.id = ms.message_id
		WHERE m.conversation_id = $1
		ORDER BY ms.message_id, ms.ordinal ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer sourceRows.Close()

	for sourceRows.Next() {
		var messageID uuid.UUID
		var source types.SourceCitation
		if err := sourceRows.Scan(&messageID, &source.Index, &source.ChunkID, &source.SourceType,
			&source.SourceID, &source.SourceTitle, &source.SectionTitle, &source.Distance); err != nil {
			return nil, err
		}
		if i, ok := index[messageID.String()]; ok {
			messages[i].Sources = append(messages[i].Sources, source)
		}
	}
	return messages, sourceRows.Err()
}

// SetMessageFeedback updates the only mutable field of a persisted message.
func (s *PostgresStore) SetMessageFeedback(ctx context.Context, messageID uuid.UUID, isPositive bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE messages SET feedback_positive = $1 WHERE id = $2`, isPositive, messageID)
	if err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetStaleConversations lists conversations untouched since the cutoff.
func (s *PostgresStore) GetStaleConversations(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM conversations WHERE updated_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ConversationExists reports whether the id addresses a known conversation.
func (s *PostgresStore) ConversationExists(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return exists, nil
}
