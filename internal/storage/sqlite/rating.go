package sqlite

import (
	"context"
	"fmt"

	"github.com/slok/taskbroker/internal/model"
)

// CreateRating creates a new rating in the repository.
func (r *Repository) CreateRating(ctx context.Context, rt model.Rating) error {
	query := `
		INSERT INTO ratings (id, task_id, from_user_id, to_user_id, score, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, rt.ID, rt.TaskID, rt.FromUserID, rt.ToUserID, rt.Score, rt.Comment, unixMilli(rt.CreatedAt))
	if err != nil {
		switch {
		case isUniqueErr(err, "ratings"):
			return fmt.Errorf("rating of task %s by %s: %w", rt.TaskID, rt.FromUserID, model.ErrAlreadyExists)
		case isForeignKeyErr(err):
			return fmt.Errorf("task %s: %w", rt.TaskID, model.ErrNotFound)
		}
		return fmt.Errorf("could not insert rating: %w", err)
	}

	r.logger.Debugf("Created rating in repository: %s", rt.ID)
	return nil
}

// ListTaskRatings returns the ratings of a task, oldest first.
func (r *Repository) ListTaskRatings(ctx context.Context, taskID string) ([]model.Rating, error) {
	query := `
		SELECT id, task_id, from_user_id, to_user_id, score, comment, created_at
		FROM ratings
		WHERE task_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not query ratings: %w", err)
	}
	defer rows.Close()

	ratings := []model.Rating{}
	for rows.Next() {
		var (
			rt        model.Rating
			createdAt int64
		)
		if err := rows.Scan(&rt.ID, &rt.TaskID, &rt.FromUserID, &rt.ToUserID, &rt.Score, &rt.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		rt.CreatedAt = timeFromUnixMilli(createdAt)
		ratings = append(ratings, rt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ratings, nil
}
