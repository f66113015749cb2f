package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/hub"
	"github.com/thevtm/baker-news/internal/store"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

// ErrStreamClosed is returned by Next after the stream has ended
var ErrStreamClosed = errors.New("feed: stream closed")

// State is the lifecycle position of a stream
type State int

const (
	StateUnstarted State = iota
	StateSnapshotSent
	StateLive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateSnapshotSent:
		return "snapshot-sent"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is one subscriber's feed. The first call to Next returns the
// snapshot; later calls return projected live frames until the stream is
// closed or the caller's context ends.
type Stream struct {
	id     string
	scope  Scope
	hub    *hub.Hub
	reader store.Reader
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	sub         *hub.Subscription
	lastDropped uint64
}

// NewStream creates an unstarted stream for scope
func NewStream(h *hub.Hub, reader store.Reader, scope Scope, logger *zap.Logger) *Stream {
	id := uuid.NewString()
	return &Stream{
		id:     id,
		scope:  scope,
		hub:    h,
		reader: reader,
		logger: logger.With(
			zap.String("component", "feed"),
			zap.String("stream_id", id),
			zap.Int64("viewer_id", scope.ViewerID),
			zap.Int64("post_id", scope.PostID)),
	}
}

// ID returns the stream identifier used in logs
func (s *Stream) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Next returns the next frame for the subscriber. A post feed whose post
// does not exist yields a single error frame and then ends.
func (s *Stream) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateUnstarted:
		return s.start(ctx)
	case StateSnapshotSent, StateLive:
		return s.live(ctx)
	default:
		return Frame{}, ErrStreamClosed
	}
}

// start takes the snapshot and subscribes in one step so no event published
// in between is missed
func (s *Stream) start(ctx context.Context) (Frame, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("stream_id", s.id),
		attribute.Int64("post_id", s.scope.PostID))

	var snapshot Frame
	sub, err := s.hub.SubscribeWith(func() error {
		var err error
		snapshot, err = LoadSnapshot(ctx, s.reader, s.scope)
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if errors.Is(err, ErrPostNotFound) {
		s.state = StateClosed
		s.logger.Debug("Post feed requested for missing post")
		return Frame{Type: FrameError, Data: Error{Message: "Post not found"}}, nil
	}
	if err != nil {
		s.state = StateClosed
		span.RecordError(err)
		return Frame{}, err
	}

	s.sub = sub
	s.state = StateSnapshotSent
	s.logger.Debug("Feed stream started")
	return snapshot, nil
}

func (s *Stream) live(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	s.state = StateLive
	sub := s.sub
	s.mu.Unlock()

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			s.Close()
			if errors.Is(err, hub.ErrClosed) {
				return Frame{}, ErrStreamClosed
			}
			return Frame{}, err
		}

		frame, ok := Project(s.scope, ev)
		if !ok {
			continue
		}

		s.mu.Lock()
		if dropped := sub.Dropped(); dropped > s.lastDropped {
			frame.Dropped = dropped - s.lastDropped
			s.lastDropped = dropped
			s.logger.Warn("Feed stream fell behind, events were dropped", zap.Uint64("dropped", frame.Dropped))
		}
		s.mu.Unlock()
		return frame, nil
	}
}

// Close ends the stream and releases its hub subscription. It is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	if s.sub != nil {
		s.sub.Close()
	}
	s.logger.Debug("Feed stream closed")
}
