package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
)

// ErrPostNotFound is returned when a post feed names a missing or deleted post
var ErrPostNotFound = errors.New("feed: post not found")

// PostView is a post as seen by one viewer
type PostView struct {
	models.Post
	Vote models.VoteType `json:"vote"`
}

// CommentView is a comment as seen by one viewer
type CommentView struct {
	models.Comment
	Vote models.VoteType `json:"vote"`
}

// GlobalSnapshot is the first frame of the all-posts feed
type GlobalSnapshot struct {
	Posts []PostView `json:"posts"`
}

// PostSnapshot is the first frame of a single post feed
type PostSnapshot struct {
	Post     PostView      `json:"post"`
	Comments []CommentView `json:"comments"`
}

// LoadSnapshot reads the current state for scope
func LoadSnapshot(ctx context.Context, reader store.Reader, scope Scope) (Frame, error) {
	if scope.Global() {
		snap, err := globalSnapshot(ctx, reader, scope.ViewerID)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Type: FrameSnapshot, Data: snap}, nil
	}

	snap, err := postSnapshot(ctx, reader, scope)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameSnapshot, Data: snap}, nil
}

func globalSnapshot(ctx context.Context, reader store.Reader, viewerID int64) (GlobalSnapshot, error) {
	posts, err := reader.ListPosts(ctx)
	if err != nil {
		return GlobalSnapshot{}, fmt.Errorf("failed to list posts: %w", err)
	}

	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	votes := map[int64]models.VoteType{}
	if viewerID != 0 && len(ids) > 0 {
		rows, err := reader.PostVotesByUser(ctx, viewerID, ids)
		if err != nil {
			return GlobalSnapshot{}, fmt.Errorf("failed to load viewer votes: %w", err)
		}
		for _, v := range rows {
			votes[v.PostID] = v.VoteType
		}
	}

	views := make([]PostView, len(posts))
	for i, p := range posts {
		views[i] = PostView{Post: p, Vote: voteOrNone(votes, p.ID)}
	}
	return GlobalSnapshot{Posts: views}, nil
}

func postSnapshot(ctx context.Context, reader store.Reader, scope Scope) (PostSnapshot, error) {
	post, err := reader.PostByID(ctx, scope.PostID)
	if errors.Is(err, store.ErrNotFound) {
		return PostSnapshot{}, ErrPostNotFound
	}
	if err != nil {
		return PostSnapshot{}, fmt.Errorf("failed to load post %d: %w", scope.PostID, err)
	}
	if post.IsDeleted() {
		return PostSnapshot{}, ErrPostNotFound
	}
	if post.Author == nil {
		author, err := reader.UserByID(ctx, post.AuthorID)
		if err != nil {
			return PostSnapshot{}, fmt.Errorf("failed to load author of post %d: %w", post.ID, err)
		}
		post.Author = author
	}

	comments, err := reader.ListComments(ctx, post.ID)
	if err != nil {
		return PostSnapshot{}, fmt.Errorf("failed to list comments of post %d: %w", post.ID, err)
	}

	postVote := models.NoVote
	commentVotes := map[int64]models.VoteType{}
	if scope.ViewerID != 0 {
		rows, err := reader.PostVotesByUser(ctx, scope.ViewerID, []int64{post.ID})
		if err != nil {
			return PostSnapshot{}, fmt.Errorf("failed to load viewer votes: %w", err)
		}
		if len(rows) == 1 {
			postVote = rows[0].VoteType
		}

		if len(comments) > 0 {
			ids := make([]int64, len(comments))
			for i, c := range comments {
				ids[i] = c.ID
			}
			rows, err := reader.CommentVotesByUser(ctx, scope.ViewerID, ids)
			if err != nil {
				return PostSnapshot{}, fmt.Errorf("failed to load viewer comment votes: %w", err)
			}
			for _, v := range rows {
				commentVotes[v.CommentID] = v.VoteType
			}
		}
	}

	views := make([]CommentView, len(comments))
	for i, c := range comments {
		views[i] = CommentView{Comment: c, Vote: voteOrNone(commentVotes, c.ID)}
	}
	return PostSnapshot{Post: PostView{Post: *post, Vote: postVote}, Comments: views}, nil
}

func voteOrNone(votes map[int64]models.VoteType, id int64) models.VoteType {
	if v, ok := votes[id]; ok {
		return v
	}
	return models.NoVote
}
