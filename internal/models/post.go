package models

import "time"

// Post represents a link submission
type Post struct {
	ID            int64      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Title         string     `gorm:"type:varchar(255);not null;column:title" json:"title"`
	URL           string     `gorm:"type:varchar(2048);not null;column:url" json:"url"`
	AuthorID      int64      `gorm:"not null;index;column:author_id" json:"authorId"`
	Score         int64      `gorm:"not null;default:0;column:score" json:"score"`
	CommentsCount int64      `gorm:"not null;default:0;column:comments_count" json:"commentsCount"`
	CreatedAt     time.Time  `gorm:"not null;column:created_at" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"not null;column:updated_at" json:"updatedAt"`
	DeletedAt     *time.Time `gorm:"column:deleted_at" json:"deletedAt,omitempty"`

	Author *User `gorm:"foreignKey:AuthorID;references:ID" json:"author,omitempty"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// IsDeleted reports whether the post was soft deleted
func (p *Post) IsDeleted() bool {
	return p.DeletedAt != nil
}
