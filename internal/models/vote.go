package models

import (
	"fmt"
	"time"
)

// VoteType is the kind of a vote
type VoteType string

const (
	NoVote   VoteType = "no_vote"
	UpVote   VoteType = "up_vote"
	DownVote VoteType = "down_vote"
)

// Weight returns the contribution of the vote to its target's score.
func (v VoteType) Weight() int64 {
	switch v {
	case UpVote:
		return 1
	case DownVote:
		return -1
	default:
		return 0
	}
}

// Valid reports whether v is one of the known vote types
func (v VoteType) Valid() bool {
	switch v {
	case NoVote, UpVote, DownVote:
		return true
	}
	return false
}

// ParseVoteType converts a string into a VoteType
func ParseVoteType(s string) (VoteType, error) {
	v := VoteType(s)
	if !v.Valid() {
		return "", fmt.Errorf("invalid vote type %q", s)
	}
	return v, nil
}

// PostVote is a user's vote on a post. At most one row exists per (user, post).
type PostVote struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PostID    int64     `gorm:"not null;index:post_votes_post_idx;uniqueIndex:post_votes_user_post_idx;column:post_id" json:"postId"`
	UserID    int64     `gorm:"not null;index:post_votes_user_idx;uniqueIndex:post_votes_user_post_idx;column:user_id" json:"userId"`
	VoteType  VoteType  `gorm:"type:varchar(16);not null;column:vote_type" json:"voteType"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for PostVote
func (PostVote) TableName() string {
	return "post_votes"
}

// CommentVote is a user's vote on a comment. At most one row exists per (user, comment).
type CommentVote struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	CommentID int64     `gorm:"not null;index:comment_votes_comment_idx;uniqueIndex:comment_votes_user_comment_idx;column:comment_id" json:"commentId"`
	UserID    int64     `gorm:"not null;index:comment_votes_user_idx;uniqueIndex:comment_votes_user_comment_idx;column:user_id" json:"userId"`
	VoteType  VoteType  `gorm:"type:varchar(16);not null;column:vote_type" json:"voteType"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for CommentVote
func (CommentVote) TableName() string {
	return "comment_votes"
}
