package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

// CreateUserInput is the input of CreateUser
type CreateUserInput struct {
	Username string `json:"username" validate:"min=3,max=32,username"`
}

// CreateUser registers a user under a case-insensitively unique name
func (c *Commands) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "commands.create_user")
	defer span.End()

	in.Username = strings.TrimSpace(in.Username)
	if err := c.check(in); err != nil {
		return nil, err
	}

	var user *models.User
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		switch _, err := tx.UserByUsername(ctx, in.Username); {
		case err == nil:
			return conflict("Username already taken")
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("failed to check username: %w", err)
		}

		user = &models.User{Username: in.Username, Role: models.RoleUser}
		if err := tx.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
