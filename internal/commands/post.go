package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

// CreatePostInput is the input of CreatePost
type CreatePostInput struct {
	Title    string `json:"title" validate:"min=5,max=100,title"`
	URL      string `json:"url" validate:"required,max=2048,url"`
	AuthorID int64  `json:"authorId" validate:"gt=0"`
}

// DeletePostInput is the input of DeletePost
type DeletePostInput struct {
	PostID int64 `json:"postId" validate:"gt=0"`
}

// CreatePost inserts a post with a title no live post already uses
func (c *Commands) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "commands.create_post")
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	if err := c.check(in); err != nil {
		return nil, err
	}

	var post *models.Post
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		author, err := tx.UserByID(ctx, in.AuthorID)
		if err != nil {
			return lookup(err, "Author doesn't exist")
		}

		switch _, err := tx.PostByTitle(ctx, in.Title); {
		case err == nil:
			return conflict("Title already taken")
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("failed to check title: %w", err)
		}

		post = &models.Post{Title: in.Title, URL: in.URL, AuthorID: author.ID}
		if err := tx.CreatePost(ctx, post); err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}

		if err := tx.AppendFact(ctx, events.PostCreatedFact{PostID: post.ID, AuthorID: author.ID}); err != nil {
			return err
		}

		post.Author = author
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost soft deletes a post. Its row stays readable so queued facts
// that reference it can still be rehydrated.
func (c *Commands) DeletePost(ctx context.Context, in DeletePostInput) (*models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "commands.delete_post")
	defer span.End()

	if err := c.check(in); err != nil {
		return nil, err
	}

	var deleted *models.Post
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		post, err := tx.PostByID(ctx, in.PostID)
		if err != nil {
			return lookup(err, "Post not found")
		}
		if post.IsDeleted() {
			return conflict("Post already deleted")
		}

		deleted, err = tx.SoftDeletePost(ctx, post.ID, c.now())
		if err != nil {
			return lookup(err, "Post not found")
		}

		return tx.AppendFact(ctx, events.PostDeletedFact{PostID: post.ID})
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
