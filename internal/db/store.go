package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
)

// Repository provides read access shared by the store and its transactions
type Repository struct {
	db *gorm.DB
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// UserByID retrieves a user by ID
func (r *Repository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserByUsername retrieves a user by name, ignoring case
func (r *Repository) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("lower(username) = lower(?)", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// PostByID retrieves a post by ID, including soft-deleted posts
func (r *Repository) PostByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &post, nil
}

// PostByTitle retrieves a live post by title, ignoring case
func (r *Repository) PostByTitle(ctx context.Context, title string) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).
		Where("lower(title) = lower(?) AND deleted_at IS NULL", title).
		First(&post).Error; err != nil {
		return nil, notFound(err)
	}
	return &post, nil
}

// CommentByID retrieves a comment by ID
func (r *Repository) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &comment, nil
}

// PostVoteByID retrieves a post vote by ID
func (r *Repository) PostVoteByID(ctx context.Context, id int64) (*models.PostVote, error) {
	var vote models.PostVote
	if err := r.db.WithContext(ctx).First(&vote, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &vote, nil
}

// CommentVoteByID retrieves a comment vote by ID
func (r *Repository) CommentVoteByID(ctx context.Context, id int64) (*models.CommentVote, error) {
	var vote models.CommentVote
	if err := r.db.WithContext(ctx).First(&vote, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &vote, nil
}

// ListPosts retrieves live posts, best first
func (r *Repository) ListPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Preload("Author").
		Where("deleted_at IS NULL").
		Order("score DESC, id DESC").
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ListComments retrieves the live comments of a post in creation order
func (r *Repository) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	var comments []models.Comment
	if err := r.db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ? AND deleted_at IS NULL", postID).
		Order("id ASC").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// PostVotesByUser retrieves a user's votes on the given posts
func (r *Repository) PostVotesByUser(ctx context.Context, userID int64, postIDs []int64) ([]models.PostVote, error) {
	var votes []models.PostVote
	if len(postIDs) == 0 {
		return votes, nil
	}
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Order("id ASC").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

// CommentVotesByUser retrieves a user's votes on the given comments
func (r *Repository) CommentVotesByUser(ctx context.Context, userID int64, commentIDs []int64) ([]models.CommentVote, error) {
	var votes []models.CommentVote
	if len(commentIDs) == 0 {
		return votes, nil
	}
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND comment_id IN ?", userID, commentIDs).
		Order("id ASC").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

// Store implements store.Store on Postgres
type Store struct {
	Repository
	notify bool
}

// Store returns the transactional store backed by this connection
func (d *DB) Store() *Store {
	return &Store{Repository: Repository{db: d.DB}, notify: d.notify}
}

// InTx runs fn in a database transaction
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to start transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&Tx{Repository: Repository{db: tx}, notify: s.notify}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx implements store.Tx inside an open database transaction
type Tx struct {
	Repository
	notify bool
}

// CreateUser inserts a user
func (t *Tx) CreateUser(ctx context.Context, user *models.User) error {
	return t.db.WithContext(ctx).Create(user).Error
}

// CreatePost inserts a post
func (t *Tx) CreatePost(ctx context.Context, post *models.Post) error {
	return t.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error
}

// CreateComment inserts a comment
func (t *Tx) CreateComment(ctx context.Context, comment *models.Comment) error {
	return t.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error
}

// SoftDeletePost stamps deleted_at and returns the updated row
func (t *Tx) SoftDeletePost(ctx context.Context, postID int64, at time.Time) (*models.Post, error) {
	var post models.Post
	res := t.db.WithContext(ctx).Model(&post).
		Clauses(clause.Returning{}).
		Where("id = ?", postID).
		Updates(map[string]interface{}{"deleted_at": at, "updated_at": at})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return &post, nil
}

// FindPostVote retrieves and locks the user's vote on a post. A missing
// vote is first inserted as no_vote, so concurrent first votes by the same
// user queue on one row instead of racing the unique index.
func (t *Tx) FindPostVote(ctx context.Context, userID, postID int64) (*models.PostVote, error) {
	now := time.Now().UTC()
	placeholder := models.PostVote{UserID: userID, PostID: postID, VoteType: models.NoVote, CreatedAt: now, UpdatedAt: now}
	if err := insertIfAbsent(t.db.WithContext(ctx), &placeholder, "user_id", "post_id").Error; err != nil {
		return nil, fmt.Errorf("failed to reserve post vote: %w", err)
	}

	var vote models.PostVote
	if err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		First(&vote).Error; err != nil {
		return nil, notFound(err)
	}
	return &vote, nil
}

// insertIfAbsent inserts value unless a row with the same key columns exists.
// On conflict Postgres waits for the transaction holding the other row.
func insertIfAbsent(db *gorm.DB, value interface{}, columns ...string) *gorm.DB {
	conflict := clause.OnConflict{DoNothing: true}
	for _, name := range columns {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: name})
	}
	return db.Clauses(conflict).Create(value)
}

// SavePostVote inserts the vote, or updates it when it already has an ID
func (t *Tx) SavePostVote(ctx context.Context, vote *models.PostVote) error {
	if vote.ID == 0 {
		return t.db.WithContext(ctx).Create(vote).Error
	}
	return t.db.WithContext(ctx).Save(vote).Error
}

// FindCommentVote retrieves and locks the user's vote on a comment,
// inserting a no_vote row first like FindPostVote
func (t *Tx) FindCommentVote(ctx context.Context, userID, commentID int64) (*models.CommentVote, error) {
	now := time.Now().UTC()
	placeholder := models.CommentVote{UserID: userID, CommentID: commentID, VoteType: models.NoVote, CreatedAt: now, UpdatedAt: now}
	if err := insertIfAbsent(t.db.WithContext(ctx), &placeholder, "user_id", "comment_id").Error; err != nil {
		return nil, fmt.Errorf("failed to reserve comment vote: %w", err)
	}

	var vote models.CommentVote
	if err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		First(&vote).Error; err != nil {
		return nil, notFound(err)
	}
	return &vote, nil
}

// SaveCommentVote inserts the vote, or updates it when it already has an ID
func (t *Tx) SaveCommentVote(ctx context.Context, vote *models.CommentVote) error {
	if vote.ID == 0 {
		return t.db.WithContext(ctx).Create(vote).Error
	}
	return t.db.WithContext(ctx).Save(vote).Error
}

// AddPostScore adds delta to a post's score in place
func (t *Tx) AddPostScore(ctx context.Context, postID, delta int64) (int64, error) {
	var post models.Post
	res := t.db.WithContext(ctx).Model(&post).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "score"}}}).
		Where("id = ?", postID).
		UpdateColumn("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, store.ErrNotFound
	}
	return post.Score, nil
}

// AddCommentScore adds delta to a comment's score in place
func (t *Tx) AddCommentScore(ctx context.Context, commentID, delta int64) (int64, error) {
	var comment models.Comment
	res := t.db.WithContext(ctx).Model(&comment).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "score"}}}).
		Where("id = ?", commentID).
		UpdateColumn("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, store.ErrNotFound
	}
	return comment.Score, nil
}

// IncrementPostComments adds one to a post's comment count
func (t *Tx) IncrementPostComments(ctx context.Context, postID int64) error {
	res := t.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("comments_count", gorm.Expr("comments_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// IncrementCommentComments adds one to a comment's reply count and returns its parent id
func (t *Tx) IncrementCommentComments(ctx context.Context, commentID int64) (*int64, error) {
	var comment models.Comment
	res := t.db.WithContext(ctx).Model(&comment).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "parent_comment_id"}}}).
		Where("id = ?", commentID).
		UpdateColumn("comments_count", gorm.Expr("comments_count + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return comment.ParentCommentID, nil
}

// AppendFact enqueues a fact and, when enabled, notifies listening relays on commit
func (t *Tx) AppendFact(ctx context.Context, f events.Fact) error {
	kind, payload, err := events.EncodeFact(f)
	if err != nil {
		return err
	}

	var id int64
	if err := t.db.WithContext(ctx).Raw(
		`INSERT INTO event_facts (kind, payload, read_count, enqueued_at, visible_at)
		 VALUES (?, ?::jsonb, 0, now(), now()) RETURNING id`,
		string(kind), string(payload),
	).Scan(&id).Error; err != nil {
		return fmt.Errorf("failed to append %s fact: %w", kind, err)
	}

	if t.notify {
		if err := t.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", FactsChannel, strconv.FormatInt(id, 10)).Error; err != nil {
			return fmt.Errorf("failed to notify %s: %w", FactsChannel, err)
		}
	}
	return nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Tx)(nil)
)
