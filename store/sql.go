package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"friendline/database"
	"friendline/models"
)

func isUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SQLRelationships stores each record as a JSON document with a version column.
type SQLRelationships struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewSQLRelationships(db *sql.DB, dialect database.Dialect) *SQLRelationships {
	return &SQLRelationships{db: db, dialect: dialect}
}

func (s *SQLRelationships) Load(ctx context.Context, userID string) (*models.Relationship, int64, error) {
	var doc string
	var version int64
	err := s.db.QueryRowContext(ctx,
		"SELECT doc, version FROM relationships WHERE user_id = ?", userID,
	).Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return models.NewRelationship(userID), 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	rec := models.NewRelationship(userID)
	if err := json.Unmarshal([]byte(doc), rec); err != nil {
		return nil, 0, err
	}
	rec.UserID = userID
	rec.Normalize()
	return rec, version, nil
}

func (s *SQLRelationships) CompareAndSwap(ctx context.Context, rec *models.Relationship, version int64) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var result sql.Result
	if version == 0 {
		result, err = s.db.ExecContext(ctx,
			s.dialect.InsertIgnore+" relationships (user_id, doc, version, updated_at) VALUES (?, ?, 1, ?)",
			rec.UserID, string(doc), now,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE relationships SET doc = ?, version = version + 1, updated_at = ? WHERE user_id = ? AND version = ?",
			string(doc), now, rec.UserID, version,
		)
	}
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}

type SQLUsers struct {
	db *sql.DB
}

func NewSQLUsers(db *sql.DB) *SQLUsers {
	return &SQLUsers{db: db}
}

const userColumns = "id, email, display_name, avatar_url, password, created_at"

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Password, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLUsers) Create(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.DisplayName, u.AvatarURL, u.Password, u.CreatedAt.UTC(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (s *SQLUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *SQLUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER(?)", email))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *SQLUsers) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	return exists, err
}

func (s *SQLUsers) Summaries(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	out := make([]models.UserSummary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, display_name, avatar_url FROM users WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]models.UserSummary, len(ids))
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.AvatarURL); err != nil {
			return nil, err
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *SQLUsers) ListExcept(ctx context.Context, id string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id != ? ORDER BY display_name, id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SQLUsers) UpdateProfile(ctx context.Context, id, displayName, avatarURL string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET display_name = COALESCE(NULLIF(?, ''), display_name), avatar_url = COALESCE(NULLIF(?, ''), avatar_url) WHERE id = ?",
		displayName, avatarURL, id,
	)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

type SQLMessages struct {
	db *sql.DB
}

func NewSQLMessages(db *sql.DB) *SQLMessages {
	return &SQLMessages{db: db}
}

const messageColumns = "id, sender_id, receiver_id, text, image_url, is_read, created_at"

func scanMessage(row interface{ Scan(...interface{}) error }) (*models.Message, error) {
	var m models.Message
	var text sql.NullString
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &text, &m.ImageURL, &m.IsRead, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Text = text.String
	return &m, nil
}

func (s *SQLMessages) Create(ctx context.Context, m *models.Message) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.SenderID, m.ReceiverID,
		sql.NullString{String: m.Text, Valid: m.Text != ""},
		m.ImageURL, m.IsRead, m.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLMessages) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC
	`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func (s *SQLMessages) MarkRead(ctx context.Context, from, to string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = ? WHERE sender_id = ? AND receiver_id = ? AND is_read = ?",
		true, from, to, false,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *SQLMessages) UnreadCount(ctx context.Context, from, to string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE sender_id = ? AND receiver_id = ? AND is_read = ?",
		from, to, false,
	).Scan(&n)
	return n, err
}

func (s *SQLMessages) Last(ctx context.Context, a, b string) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, a, b, b, a))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}
