package models

import "time"

// EventFact is an active entry of the durable event queue
type EventFact struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Kind       string    `gorm:"type:varchar(64);not null;column:kind"`
	Payload    []byte    `gorm:"type:jsonb;not null;column:payload"`
	ReadCount  int       `gorm:"not null;default:0;column:read_count"`
	EnqueuedAt time.Time `gorm:"not null;column:enqueued_at"`
	VisibleAt  time.Time `gorm:"not null;index;column:visible_at"`
}

// TableName specifies the table name for EventFact
func (EventFact) TableName() string {
	return "event_facts"
}

// ArchivedFact is a processed fact kept for audit
type ArchivedFact struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Kind       string    `gorm:"type:varchar(64);not null;column:kind"`
	Payload    []byte    `gorm:"type:jsonb;not null;column:payload"`
	ReadCount  int       `gorm:"not null;column:read_count"`
	EnqueuedAt time.Time `gorm:"not null;column:enqueued_at"`
	ArchivedAt time.Time `gorm:"not null;column:archived_at"`
}

// TableName specifies the table name for ArchivedFact
func (ArchivedFact) TableName() string {
	return "archived_facts"
}

// All lists every model managed by the schema
func All() []interface{} {
	return []interface{}{
		&User{}, &Post{}, &Comment{}, &PostVote{}, &CommentVote{}, &EventFact{}, &ArchivedFact{},
	}
}
