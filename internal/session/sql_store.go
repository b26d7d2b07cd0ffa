package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forgecode/orchestra/internal/provider"
)

// sessionRow is the sessions table schema.
type sessionRow struct {
	Name      string    `gorm:"primaryKey;column:name"`
	Prompt    string    `gorm:"column:prompt"`
	Responses string    `gorm:"column:responses"` // JSON provider→text
	Providers string    `gorm:"column:providers"` // JSON list
	Timestamp time.Time `gorm:"column:timestamp"`
}

func (sessionRow) TableName() string { return "sessions" }

// SQLStore mirrors saved sessions into a SQLite database so past runs
// can be queried without scanning the JSON files.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLStore opens the store over an existing gorm connection and
// ensures the sessions table exists.
func NewSQLStore(db *gorm.DB, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, logger: logger}, nil
}

// Save upserts the session row.
func (s *SQLStore) Save(ctx context.Context, sess Session) error {
	if !validName(sess.Name) {
		return ErrInvalidName
	}
	responses, err := json.Marshal(sess.Responses)
	if err != nil {
		return err
	}
	providers, err := json.Marshal(sess.Providers)
	if err != nil {
		return err
	}
	row := sessionRow{
		Name:      sess.Name,
		Prompt:    sess.Prompt,
		Responses: string(responses),
		Providers: string(providers),
		Timestamp: sess.Timestamp,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// Load reads one session by name.
func (s *SQLStore) Load(ctx context.Context, name string) (Session, error) {
	if !validName(name) {
		return Session{}, ErrInvalidName
	}
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}

	sess := Session{Name: row.Name, Prompt: row.Prompt, Timestamp: row.Timestamp}
	if err := json.Unmarshal([]byte(row.Responses), &sess.Responses); err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(row.Providers), &sess.Providers); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// List returns saved session names ordered by recency.
func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&sessionRow{}).
		Order("timestamp desc").
		Pluck("name", &names).Error
	return names, err
}

// Recent returns up to limit sessions ordered newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Session, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Order("timestamp desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		sess := Session{Name: row.Name, Prompt: row.Prompt, Timestamp: row.Timestamp}
		if err := json.Unmarshal([]byte(row.Responses), &sess.Responses); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(row.Providers), &sess.Providers); err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// ByProvider returns sessions that included the given provider.
func (s *SQLStore) ByProvider(ctx context.Context, p provider.Name) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&sessionRow{}).
		Where("providers LIKE ?", "%\""+string(p)+"\"%").
		Order("timestamp desc").
		Pluck("name", &names).Error
	return names, err
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
