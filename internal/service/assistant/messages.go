package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"chatstream/internal/models"
)

const messageColumns = `id, role, content, status, created_at`

// CreateMessage inserts a chat turn and returns it with its id and timestamp.
// Content is stored verbatim. A bot reply may start with whitespace, a user prompt may not be blank.
func (s *Service) CreateMessage(ctx context.Context, role models.Role, content string, status models.MessageStatus) (*models.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if content == "" || (role == models.RoleUser && strings.TrimSpace(content) == "") {
		return nil, ErrEmptyContent
	}
	if status == "" {
		status = models.StatusComplete
	}
	createdAt := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (role, content, status, created_at) VALUES (?, ?, ?, ?)`,
		role, content, status, createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.Message{ID: id, Role: role, Content: content, Status: status, CreatedAt: createdAt}, nil
}

// UpdateMessage rewrites the content and status of a bot message in place.
func (s *Service) UpdateMessage(ctx context.Context, id int64, content string, status models.MessageStatus) error {
	if id <= 0 {
		return errors.New("invalid message id")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, status = ? WHERE id = ? AND role = ?`,
		content, status, id, models.RoleBot,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("message rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	// mysql reports zero affected rows when nothing changed.
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.Role != models.RoleBot {
		return ErrImmutableMessage
	}
	return nil
}

// GetMessage returns one message or sql.ErrNoRows.
func (s *Service) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// ListMessages returns every message in insertion order.
func (s *Service) ListMessages(ctx context.Context) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteMessage removes a message; sql.ErrNoRows when absent.
func (s *Service) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("message rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	if err := row.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.Status, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}
