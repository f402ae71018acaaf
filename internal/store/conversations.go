package store

import (
	"context"
	"database/sql"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
)

const settingActiveConversation = "active_conversation"

// CreateConversation inserts an empty conversation.
func (s *SQLite) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at) VALUES (?, ?)`,
		conv.ID, conv.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// AppendTurn inserts a turn after the last one of the conversation.
func (s *SQLite) AppendTurn(ctx context.Context, conversationID string, turn domain.ConversationTurn) error {
	query := `
		INSERT INTO turns (
			id, conversation_id, seq, created_at, transcript,
			ai_response, context_used, system_prompt_used, quick_action_id
		) VALUES (
			?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE conversation_id = ?),
			?, ?, ?, ?, ?, ?
		)
	`
	_, err := s.db.ExecContext(ctx, query,
		turn.ID, conversationID, conversationID,
		turn.CreatedAt.UnixMilli(), turn.Transcript,
		toNullString(turn.AIResponse), toNullString(turn.ContextUsed),
		toNullString(turn.SystemPromptUsed), toNullString(turn.QuickActionID),
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// ListConversations returns every conversation with its turns, oldest first.
func (s *SQLite) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at FROM conversations ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var conversations []domain.Conversation
	index := map[string]int{}
	for rows.Next() {
		var (
			conv      domain.Conversation
			createdAt int64
		)
		if err := rows.Scan(&conv.ID, &createdAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		conv.CreatedAt = time.UnixMilli(createdAt).UTC()
		index[conv.ID] = len(conversations)
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	turnRows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, id, created_at, transcript,
			ai_response, context_used, system_prompt_used, quick_action_id
		FROM turns
		ORDER BY conversation_id, seq
	`)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer turnRows.Close()

	for turnRows.Next() {
		var (
			conversationID string
			turn           domain.ConversationTurn
			createdAt      int64
			response       sql.NullString
			contextUsed    sql.NullString
			systemPrompt   sql.NullString
			quickActionID  sql.NullString
		)
		if err := turnRows.Scan(
			&conversationID, &turn.ID, &createdAt, &turn.Transcript,
			&response, &contextUsed, &systemPrompt, &quickActionID,
		); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		turn.CreatedAt = time.UnixMilli(createdAt).UTC()
		turn.AIResponse = fromNullString(response)
		turn.ContextUsed = fromNullString(contextUsed)
		turn.SystemPromptUsed = fromNullString(systemPrompt)
		turn.QuickActionID = fromNullString(quickActionID)

		if i, ok := index[conversationID]; ok {
			conversations[i].Turns = append(conversations[i].Turns, turn)
		}
	}
	if err := turnRows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	return conversations, nil
}

// SetActiveConversation records the conversation receiving new turns.
func (s *SQLite) SetActiveConversation(ctx context.Context, conversationID string) error {
	return s.SaveSetting(ctx, settingActiveConversation, conversationID)
}

// ActiveConversation returns the recorded active conversation id, or "".
func (s *SQLite) ActiveConversation(ctx context.Context) (string, error) {
	id, _, err := s.LoadSetting(ctx, settingActiveConversation)
	return id, err
}
