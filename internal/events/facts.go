// Package events defines the facts persisted in the durable event queue and
// the rehydrated events the relay builds from them.
package events

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the type of a fact and of the event rehydrated from it
type Kind string

const (
	KindPostCreated    Kind = "user_created_post"
	KindPostDeleted    Kind = "user_deleted_post"
	KindPostVoted      Kind = "user_voted_post"
	KindCommentCreated Kind = "user_created_comment"
	KindCommentVoted   Kind = "user_voted_comment"
)

// Fact is an id-only record of a mutation. Payloads never carry row state
// because the row may change again before the fact is replayed.
type Fact interface {
	Kind() Kind
}

// PostCreatedFact records that a user created a post
type PostCreatedFact struct {
	PostID   int64 `json:"postId"`
	AuthorID int64 `json:"authorId"`
}

// PostDeletedFact records that a post was soft deleted
type PostDeletedFact struct {
	PostID int64 `json:"postId"`
}

// PostVotedFact records that a user voted on a post
type PostVotedFact struct {
	PostVoteID int64 `json:"postVoteId"`
	PostID     int64 `json:"postId"`
	UserID     int64 `json:"userId"`
}

// CommentCreatedFact records that a user created a comment
type CommentCreatedFact struct {
	CommentID int64 `json:"commentId"`
	AuthorID  int64 `json:"authorId"`
}

// CommentVotedFact records that a user voted on a comment
type CommentVotedFact struct {
	CommentVoteID int64 `json:"commentVoteId"`
	CommentID     int64 `json:"commentId"`
	UserID        int64 `json:"userId"`
}

func (PostCreatedFact) Kind() Kind    { return KindPostCreated }
func (PostDeletedFact) Kind() Kind    { return KindPostDeleted }
func (PostVotedFact) Kind() Kind      { return KindPostVoted }
func (CommentCreatedFact) Kind() Kind { return KindCommentCreated }
func (CommentVotedFact) Kind() Kind   { return KindCommentVoted }

// EncodeFact serializes a fact payload for storage.
func EncodeFact(f Fact) (Kind, []byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s fact: %w", f.Kind(), err)
	}
	return f.Kind(), payload, nil
}

// DecodeFact parses a stored payload according to its kind.
func DecodeFact(kind Kind, payload []byte) (Fact, error) {
	var f Fact
	switch kind {
	case KindPostCreated:
		f = &PostCreatedFact{}
	case KindPostDeleted:
		f = &PostDeletedFact{}
	case KindPostVoted:
		f = &PostVotedFact{}
	case KindCommentCreated:
		f = &CommentCreatedFact{}
	case KindCommentVoted:
		f = &CommentVotedFact{}
	default:
		return nil, fmt.Errorf("unknown fact kind %q", kind)
	}
	if err := json.Unmarshal(payload, f); err != nil {
		return nil, fmt.Errorf("failed to decode %s fact: %w", kind, err)
	}
	return f, nil
}
