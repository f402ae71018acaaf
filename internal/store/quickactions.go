package store

import (
	"context"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
)

// InsertQuickAction stores a new action. Labels are unique and compared
// case-sensitively.
func (s *SQLite) InsertQuickAction(ctx context.Context, action domain.QuickAction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quick_actions (id, label, prompt_template, created_at) VALUES (?, ?, ?, ?)`,
		action.ID, action.Label, action.PromptTemplate, action.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.NewDuplicateLabel(action.Label)
		}
		return apperrors.NewInternal(err)
	}
	return nil
}

// DeleteQuickAction removes an action. Missing ids are not an error.
func (s *SQLite) DeleteQuickAction(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quick_actions WHERE id = ?`, id); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// ListQuickActions returns the registry in creation order.
func (s *SQLite) ListQuickActions(ctx context.Context) ([]domain.QuickAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, prompt_template, created_at FROM quick_actions ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var actions []domain.QuickAction
	for rows.Next() {
		var (
			action    domain.QuickAction
			createdAt int64
		)
		if err := rows.Scan(&action.ID, &action.Label, &action.PromptTemplate, &createdAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		action.CreatedAt = time.UnixMilli(createdAt).UTC()
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return actions, nil
}
