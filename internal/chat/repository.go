package chat

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence operations for transcript entries.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	AppendBatch(ctx context.Context, entries []*Entry) error
	ListBySession(ctx context.Context, sessionID string) ([]Entry, error)
}

// GormRepository persists entries using a Gorm database connection.
type GormRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRepository constructs a Gorm-backed repository implementation.
func NewRepository(db *gorm.DB, logger *logrus.Logger) (*GormRepository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormRepository{db: db, logger: logger}, nil
}

var _ Repository = (*GormRepository)(nil)

// Append inserts a new entry.
func (r *GormRepository) Append(ctx context.Context, entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logError(logrus.Fields{"session_id": entry.SessionID, "panel": entry.Panel}, err, "appending chat entry")
		return eris.Wrapf(err, "appending chat entry for session %s", entry.SessionID)
	}

	return nil
}

// AppendBatch inserts entries in one transaction; either all of them are stored or none.
func (r *GormRepository) AppendBatch(ctx context.Context, entries []*Entry) error {
	for _, entry := range entries {
		if err := validateEntry(entry); err != nil {
			return err
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			if err := tx.Create(entry).Error; err != nil {
				return eris.Wrapf(err, "appending chat entry for session %s", entry.SessionID)
			}
		}
		return nil
	})
	if err != nil {
		r.logError(logrus.Fields{"entries": len(entries)}, err, "appending chat entries")
		return eris.Wrap(err, "appending chat entries")
	}

	return nil
}

func validateEntry(entry *Entry) error {
	if entry == nil {
		return eris.New("entry is nil")
	}

	entry.SessionID = strings.TrimSpace(entry.SessionID)
	if entry.SessionID == "" {
		return eris.New("entry session id is required")
	}
	if entry.Panel != PanelDiagnosis && entry.Panel != PanelAssistant {
		return eris.Errorf("unknown transcript panel: %s", entry.Panel)
	}

	return nil
}

// ListBySession returns every entry of the session in insertion order.
func (r *GormRepository) ListBySession(ctx context.Context, sessionID string) ([]Entry, error) {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return nil, eris.New("session id is required")
	}

	var entries []Entry
	if err := r.db.WithContext(ctx).Where("session_id = ?", trimmed).Order("id ASC").Find(&entries).Error; err != nil {
		r.logError(logrus.Fields{"session_id": trimmed}, err, "listing chat entries")
		return nil, eris.Wrapf(err, "listing chat entries for session %s", trimmed)
	}

	return entries, nil
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
