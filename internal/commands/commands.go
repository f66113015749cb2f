// Package commands implements the mutations of the board. Each command runs
// in one store transaction together with the fact it appends.
package commands

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/store"
)

// Commands executes mutations against a store
type Commands struct {
	store    store.Store
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger
}

// New creates the command set
func New(s store.Store, logger *zap.Logger) *Commands {
	return &Commands{
		store:    s,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(zap.String("component", "commands")),
	}
}
