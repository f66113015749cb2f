package commands

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

// VotePostInput is the input of VotePost
type VotePostInput struct {
	UserID   int64           `json:"userId" validate:"gt=0"`
	PostID   int64           `json:"postId" validate:"gt=0"`
	VoteType models.VoteType `json:"voteType" validate:"oneof=no_vote up_vote down_vote"`
}

// VotePostResult is the vote as stored and the post score after it
type VotePostResult struct {
	Vote     models.PostVote `json:"vote"`
	NewScore int64           `json:"newScore"`
}

// VoteCommentInput is the input of VoteComment
type VoteCommentInput struct {
	UserID    int64           `json:"userId" validate:"gt=0"`
	CommentID int64           `json:"commentId" validate:"gt=0"`
	VoteType  models.VoteType `json:"voteType" validate:"oneof=no_vote up_vote down_vote"`
}

// VoteCommentResult is the vote as stored and the comment score after it
type VoteCommentResult struct {
	Vote     models.CommentVote `json:"vote"`
	NewScore int64              `json:"newScore"`
}

// VotePost records the user's vote on a post. The score moves by the
// difference between the new and the previous vote, so repeating a vote
// leaves the score unchanged.
func (c *Commands) VotePost(ctx context.Context, in VotePostInput) (*VotePostResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "commands.vote_post")
	defer span.End()
	span.SetAttributes(attribute.Int64("post_id", in.PostID), attribute.String("vote_type", string(in.VoteType)))

	if err := c.check(in); err != nil {
		return nil, err
	}

	var result VotePostResult
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.UserByID(ctx, in.UserID); err != nil {
			return lookup(err, "User doesn't exist")
		}
		post, err := tx.PostByID(ctx, in.PostID)
		if err != nil {
			return lookup(err, "Post doesn't exist")
		}
		if post.IsDeleted() {
			return notFound("Post doesn't exist")
		}

		vote, err := tx.FindPostVote(ctx, in.UserID, in.PostID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			vote = &models.PostVote{UserID: in.UserID, PostID: in.PostID, VoteType: models.NoVote}
		case err != nil:
			return fmt.Errorf("failed to read post vote: %w", err)
		}

		// Move the score by the change in weight only
		delta := in.VoteType.Weight() - vote.VoteType.Weight()
		vote.VoteType = in.VoteType
		if err := tx.SavePostVote(ctx, vote); err != nil {
			return fmt.Errorf("failed to save post vote: %w", err)
		}

		score, err := tx.AddPostScore(ctx, post.ID, delta)
		if err != nil {
			return lookup(err, "Post doesn't exist")
		}

		if err := tx.AppendFact(ctx, events.PostVotedFact{PostVoteID: vote.ID, PostID: post.ID, UserID: in.UserID}); err != nil {
			return err
		}

		result = VotePostResult{Vote: *vote, NewScore: score}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// VoteComment records the user's vote on a comment, with the same delta
// rule as VotePost.
func (c *Commands) VoteComment(ctx context.Context, in VoteCommentInput) (*VoteCommentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "commands.vote_comment")
	defer span.End()
	span.SetAttributes(attribute.Int64("comment_id", in.CommentID), attribute.String("vote_type", string(in.VoteType)))

	if err := c.check(in); err != nil {
		return nil, err
	}

	var result VoteCommentResult
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.UserByID(ctx, in.UserID); err != nil {
			return lookup(err, "User doesn't exist")
		}
		comment, err := tx.CommentByID(ctx, in.CommentID)
		if err != nil {
			return lookup(err, "Comment doesn't exist")
		}
		if comment.DeletedAt != nil {
			return notFound("Comment doesn't exist")
		}

		vote, err := tx.FindCommentVote(ctx, in.UserID, in.CommentID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			vote = &models.CommentVote{UserID: in.UserID, CommentID: in.CommentID, VoteType: models.NoVote}
		case err != nil:
			return fmt.Errorf("failed to read comment vote: %w", err)
		}

		delta := in.VoteType.Weight() - vote.VoteType.Weight()
		vote.VoteType = in.VoteType
		if err := tx.SaveCommentVote(ctx, vote); err != nil {
			return fmt.Errorf("failed to save comment vote: %w", err)
		}

		score, err := tx.AddCommentScore(ctx, comment.ID, delta)
		if err != nil {
			return lookup(err, "Comment doesn't exist")
		}

		if err := tx.AppendFact(ctx, events.CommentVotedFact{CommentVoteID: vote.ID, CommentID: comment.ID, UserID: in.UserID}); err != nil {
			return err
		}

		result = VoteCommentResult{Vote: *vote, NewScore: score}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
