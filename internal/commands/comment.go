package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

// CreateCommentInput is the input of CreateComment. Exactly one of PostID
// and ParentCommentID must be set.
type CreateCommentInput struct {
	Content         string `json:"content" validate:"min=1,max=1000"`
	AuthorID        int64  `json:"authorId" validate:"gt=0"`
	PostID          *int64 `json:"postId" validate:"omitempty,gt=0"`
	ParentCommentID *int64 `json:"parentCommentId" validate:"omitempty,gt=0"`
}

// CreateComment inserts a comment and increments the comment count of the
// owning post and of every ancestor comment.
func (c *Commands) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	ctx, span := telemetry.StartSpan(ctx, "commands.create_comment")
	defer span.End()

	in.Content = strings.TrimSpace(in.Content)
	if err := c.check(in); err != nil {
		return nil, err
	}
	if (in.PostID == nil) == (in.ParentCommentID == nil) {
		return nil, invalidInput("Either post or parent comment must be provided")
	}

	var comment *models.Comment
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		author, err := tx.UserByID(ctx, in.AuthorID)
		if err != nil {
			return lookup(err, "Author doesn't exist")
		}

		postID, err := owningPost(ctx, tx, in)
		if err != nil {
			return err
		}

		comment = &models.Comment{
			Content:         in.Content,
			PostID:          postID,
			ParentCommentID: in.ParentCommentID,
			AuthorID:        author.ID,
		}
		if err := tx.CreateComment(ctx, comment); err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}

		if err := tx.IncrementPostComments(ctx, postID); err != nil {
			return fmt.Errorf("failed to increment comments of post %d: %w", postID, err)
		}
		if err := cascade(ctx, tx, in.ParentCommentID); err != nil {
			return err
		}

		if err := tx.AppendFact(ctx, events.CommentCreatedFact{CommentID: comment.ID, AuthorID: author.ID}); err != nil {
			return err
		}

		comment.Author = author
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCycle) {
			c.logger.Error("Comment chain is corrupt", zap.Int64p("parent_comment_id", in.ParentCommentID), zap.Error(err))
		}
		return nil, err
	}
	return comment, nil
}

// owningPost resolves the live post a new comment belongs to
func owningPost(ctx context.Context, tx store.Tx, in CreateCommentInput) (int64, error) {
	postID := int64(0)
	if in.PostID != nil {
		postID = *in.PostID
	} else {
		parent, err := tx.CommentByID(ctx, *in.ParentCommentID)
		if err != nil {
			return 0, lookup(err, "Comment doesn't exist")
		}
		if parent.DeletedAt != nil {
			return 0, notFound("Comment doesn't exist")
		}
		postID = parent.PostID
	}

	post, err := tx.PostByID(ctx, postID)
	if err != nil {
		return 0, lookup(err, "Post doesn't exist")
	}
	if post.IsDeleted() {
		return 0, notFound("Post doesn't exist")
	}
	return post.ID, nil
}

// cascade walks the reply chain upward from parentID, incrementing each
// ancestor's comment count. Revisiting a comment means the parent links
// form a cycle.
func cascade(ctx context.Context, tx store.Tx, parentID *int64) error {
	visited := make(map[int64]bool)
	for parentID != nil {
		id := *parentID
		if visited[id] {
			return fmt.Errorf("%w: comment %d reached twice", ErrCycle, id)
		}
		visited[id] = true

		next, err := tx.IncrementCommentComments(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to increment replies of comment %d: %w", id, err)
		}
		parentID = next
	}
	return nil
}
