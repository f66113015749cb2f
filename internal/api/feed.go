package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/feed"
)

// postsFeed streams the global feed: GET /feed/posts?user_id=
func (r *Router) postsFeed(c *gin.Context) {
	viewerID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	r.serveFeed(c, feed.Scope{ViewerID: viewerID})
}

// postFeed streams one post and its comments: GET /feed/posts/:id?user_id=
func (r *Router) postFeed(c *gin.Context) {
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || postID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}
	viewerID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	r.serveFeed(c, feed.Scope{ViewerID: viewerID, PostID: postID})
}

// serveFeed writes stream frames as server-sent events until the client
// disconnects or the stream ends
func (r *Router) serveFeed(c *gin.Context, scope feed.Scope) {
	ctx := c.Request.Context()
	stream := feed.NewStream(r.hub, r.reader, scope, r.logger)
	defer stream.Close()

	logger := r.logger.With(
		zap.String("stream_id", stream.ID()),
		zap.String("request_id", c.GetString(requestIDKey)))
	logger.Info("Feed stream opened", zap.Int64("viewer_id", scope.ViewerID), zap.Int64("post_id", scope.PostID))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		frame, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, feed.ErrStreamClosed) {
				logger.Error("Feed stream failed", zap.Error(err))
				c.SSEvent(string(feed.FrameError), feed.Frame{Type: feed.FrameError, Data: feed.Error{Message: "Server error"}})
			}
			return false
		}
		c.SSEvent(string(frame.Type), frame)
		return frame.Type != feed.FrameError
	})

	logger.Info("Feed stream closed")
}

// queryID parses an optional positive id query parameter. It writes a 400
// response and reports false when the value is malformed.
func queryID(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}
