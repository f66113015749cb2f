package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/thevtm/baker-news/internal/commands"
	"github.com/thevtm/baker-news/internal/feed"
)

// decodeParams unmarshals named params into v. Missing params decode as {}.
func decodeParams(params json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return NewError(ErrInvalidParams, "Invalid params")
	}
	return nil
}

// createUser handles users.create
func (r *Router) createUser(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var in commands.CreateUserInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	return r.commands.CreateUser(c.Request.Context(), in)
}

// createPost handles posts.create
func (r *Router) createPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var in commands.CreatePostInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	return r.commands.CreatePost(c.Request.Context(), in)
}

// deletePost handles posts.delete
func (r *Router) deletePost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var in commands.DeletePostInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	return r.commands.DeletePost(c.Request.Context(), in)
}

// votePost handles posts.vote
func (r *Router) votePost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var in commands.VotePostInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	return r.commands.VotePost(c.Request.Context(), in)
}

type getPostParams struct {
	PostID int64 `json:"postId"`
	UserID int64 `json:"userId"`
}

// getPost handles posts.get. It returns the same view a post feed starts with.
func (r *Router) getPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p getPostParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.PostID <= 0 {
		return nil, NewError(ErrInvalidParams, "Invalid post ID")
	}

	frame, err := feed.LoadSnapshot(c.Request.Context(), r.reader, feed.Scope{ViewerID: p.UserID, PostID: p.PostID})
	if errors.Is(err, feed.ErrPostNotFound) {
		return nil, NewError(ErrNotFound, "Post not found")
	}
	if err != nil {
		return nil, err
	}
	return frame.Data, nil
}

type listPostsParams struct {
	UserID int64 `json:"userId"`
}

// listPosts handles posts.list
func (r *Router) listPosts(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p listPostsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	frame, err := feed.LoadSnapshot(c.Request.Context(), r.reader, feed.Scope{ViewerID: p.UserID})
	if err != nil {
		return nil, err
	}
	return frame.Data, nil
}

// createComment handles comments.create
func (r *Router) createComment(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var in commands.CreateCommentInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	return r.commands.CreateComment(c.Request.Context(), in)
}

// voteComment handles comments.vote
func (r *Router) voteComment(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var in commands.VoteCommentInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	return r.commands.VoteComment(c.Request.Context(), in)
}
