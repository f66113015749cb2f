package models

import "time"

// Comment represents a reply to a post or to another comment
type Comment struct {
	ID              int64      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Content         string     `gorm:"type:varchar(1000);not null;column:content" json:"content"`
	PostID          int64      `gorm:"not null;index:comments_post_idx;column:post_id" json:"postId"`
	ParentCommentID *int64     `gorm:"index:comments_parent_comment_idx;column:parent_comment_id" json:"parentCommentId,omitempty"`
	AuthorID        int64      `gorm:"not null;column:author_id" json:"authorId"`
	Score           int64      `gorm:"not null;default:0;column:score" json:"score"`
	CommentsCount   int64      `gorm:"not null;default:0;column:comments_count" json:"commentsCount"`
	CreatedAt       time.Time  `gorm:"not null;column:created_at" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null;column:updated_at" json:"updatedAt"`
	DeletedAt       *time.Time `gorm:"column:deleted_at" json:"deletedAt,omitempty"`

	Author *User `gorm:"foreignKey:AuthorID;references:ID" json:"author,omitempty"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}
