package chat

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the chat schema using Gorm's AutoMigrate and logs progress.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "chat.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying chat schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("chat schema migration failed")
		}
		return eris.Wrap(err, "auto migrating chat schema")
	}

	if logger != nil {
		logger.WithFields(logFields).Info("chat schema migration complete")
	}

	return nil
}
