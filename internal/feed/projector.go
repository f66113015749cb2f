// Package feed turns hub events into the frames a single feed subscriber
// sees: one snapshot followed by live updates filtered to its scope.
package feed

import (
	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
)

// FrameType tags the payload of a frame
type FrameType string

const (
	FrameSnapshot        FrameType = "initialSnapshot"
	FrameScoreChanged    FrameType = "scoreChanged"
	FrameYourVoteChanged FrameType = "yourVoteChanged"
	FrameCommentCreated  FrameType = "commentCreated"
	FramePostCreated     FrameType = "postCreated"
	FramePostDeleted     FrameType = "postDeleted"
	FrameError           FrameType = "error"
)

// Target types carried by vote frames
const (
	TargetPost    = "post"
	TargetComment = "comment"
)

// Frame is one message on a feed stream. Dropped is the number of events
// the hub discarded for this stream since the previous frame.
type Frame struct {
	Type    FrameType   `json:"type"`
	Data    interface{} `json:"data"`
	Dropped uint64      `json:"dropped,omitempty"`
}

// Scope selects which events a stream receives. PostID 0 is the global feed.
type Scope struct {
	ViewerID int64
	PostID   int64
}

// Global reports whether the scope is the all-posts feed
func (s Scope) Global() bool {
	return s.PostID == 0
}

func (s Scope) covers(postID int64) bool {
	return s.Global() || s.PostID == postID
}

// Vote is a viewer-facing vote on a post or comment
type Vote struct {
	ID         int64           `json:"id"`
	TargetType string          `json:"targetType"`
	TargetID   int64           `json:"targetId"`
	UserID     int64           `json:"userId"`
	VoteType   models.VoteType `json:"voteType"`
}

// ScoreChanged tells a viewer that someone else moved a score
type ScoreChanged struct {
	TargetType string `json:"targetType"`
	TargetID   int64  `json:"targetId"`
	NewScore   int64  `json:"newScore"`
}

// YourVoteChanged echoes the viewer's own vote with the resulting score
type YourVoteChanged struct {
	Vote     Vote  `json:"vote"`
	NewScore int64 `json:"newScore"`
}

// CommentCreated carries a new comment with its author
type CommentCreated struct {
	Comment models.Comment `json:"comment"`
}

// PostCreated carries a new post with its author
type PostCreated struct {
	Post models.Post `json:"post"`
}

// PostDeleted names a post that was removed
type PostDeleted struct {
	PostID int64 `json:"postId"`
}

// Error is an in-band failure. The stream ends after it.
type Error struct {
	Message string `json:"message"`
}

// Project maps ev to the frame scope should see. It reports false when the
// event is outside the scope.
func Project(scope Scope, ev events.Event) (Frame, bool) {
	switch e := ev.(type) {
	case events.PostVoted:
		if !scope.covers(e.Post.ID) {
			return Frame{}, false
		}
		if scope.ViewerID != 0 && e.Vote.UserID == scope.ViewerID {
			return Frame{Type: FrameYourVoteChanged, Data: YourVoteChanged{
				Vote: Vote{
					ID:         e.Vote.ID,
					TargetType: TargetPost,
					TargetID:   e.Post.ID,
					UserID:     e.Vote.UserID,
					VoteType:   e.Vote.VoteType,
				},
				NewScore: e.Post.Score,
			}}, true
		}
		return Frame{Type: FrameScoreChanged, Data: ScoreChanged{
			TargetType: TargetPost,
			TargetID:   e.Post.ID,
			NewScore:   e.Post.Score,
		}}, true

	case events.CommentVoted:
		// Comment scores are only shown on the post page.
		if scope.Global() || e.Comment.PostID != scope.PostID {
			return Frame{}, false
		}
		if scope.ViewerID != 0 && e.Vote.UserID == scope.ViewerID {
			return Frame{Type: FrameYourVoteChanged, Data: YourVoteChanged{
				Vote: Vote{
					ID:         e.Vote.ID,
					TargetType: TargetComment,
					TargetID:   e.Comment.ID,
					UserID:     e.Vote.UserID,
					VoteType:   e.Vote.VoteType,
				},
				NewScore: e.Comment.Score,
			}}, true
		}
		return Frame{Type: FrameScoreChanged, Data: ScoreChanged{
			TargetType: TargetComment,
			TargetID:   e.Comment.ID,
			NewScore:   e.Comment.Score,
		}}, true

	case events.CommentCreated:
		if !scope.covers(e.Comment.PostID) {
			return Frame{}, false
		}
		comment := e.Comment
		author := e.Author
		comment.Author = &author
		return Frame{Type: FrameCommentCreated, Data: CommentCreated{Comment: comment}}, true

	case events.PostCreated:
		if !scope.Global() {
			return Frame{}, false
		}
		post := e.Post
		author := e.Author
		post.Author = &author
		return Frame{Type: FramePostCreated, Data: PostCreated{Post: post}}, true

	case events.PostDeleted:
		if !scope.covers(e.Post.ID) {
			return Frame{}, false
		}
		return Frame{Type: FramePostDeleted, Data: PostDeleted{PostID: e.Post.ID}}, true
	}

	return Frame{}, false
}
