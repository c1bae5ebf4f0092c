package web

import (
	"context"
	"fmt"
	"time"

	"knowledge-agent/database"

	"go.uber.org/zap"
)

// CleanupService removes conversations that have not been touched within the
// retention window.
type CleanupService struct {
	store  *database.PostgresStore
	logger *zap.Logger
}

func NewCleanupService(store *database.PostgresStore, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		store:  store,
		logger: logger,
	}
}

// CleanupStaleConversations deletes conversations last updated before
// now-maxAge and returns how many were removed.
func (cs *CleanupService) CleanupStaleConversations(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoffTime := time.Now().Add(-maxAge)

	cs.logger.Info("Starting stale conversation cleanup",
		zap.Time("cutoff_time", cutoffTime),
		zap.Duration("max_age", maxAge))

	staleConversations, err := cs.store.GetStaleConversations(ctx, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to get stale conversations: %w", err)
	}

	if len(staleConversations) == 0 {
		cs.logger.Debug("No stale conversations found")
		return 0, nil
	}

	deletedCount := 0
	for _, conversationID := range staleConversations {
		if err := cs.store.DeleteConversation(ctx, conversationID); err != nil {
			cs.logger.Error("Failed to delete stale conversation",
				zap.Error(err),
				zap.String("conversation_id", conversationID.String()))
			// Continue with the rest even if one fails
			continue
		}
		deletedCount++
	}

	cs.logger.Info("Stale conversation cleanup completed",
		zap.Int("deleted", deletedCount),
		zap.Int("failed", len(staleConversations)-deletedCount))

	return deletedCount, nil
}

// Run periodically sweeps until ctx is cancelled.
func (cs *CleanupService) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cs.CleanupStaleConversations(ctx, maxAge); err != nil {
				cs.logger.Error("Conversation cleanup sweep failed", zap.Error(err))
			}
		}
	}
}
