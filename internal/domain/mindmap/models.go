package mindmap

import (
	"time"

	"github.com/google/uuid"
)

// Session is the room row. It is upserted lazily by the first accepted utterance.
type Session struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Title     string    `gorm:"type:text;not null;default:''" json:"title"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Session) TableName() string { return "session" }

// Node is one accepted utterance. Seq is 1-based insertion order within the session.
type Node struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:text;not null;index;uniqueIndex:idx_node_session_seq,priority:1" json:"session_id"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_node_session_seq,priority:2" json:"seq"`
	User      string    `gorm:"column:user;type:text;not null" json:"user"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Node) TableName() string { return "node" }

// Link is directed from an older node (Source) to the node that created it (Target).
type Link struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  string    `gorm:"type:text;not null;index" json:"session_id"`
	SourceID   uuid.UUID `gorm:"type:uuid;not null;index" json:"source_id"`
	TargetID   uuid.UUID `gorm:"type:uuid;not null;index" json:"target_id"`
	Similarity float64   `gorm:"not null" json:"similarity"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (Link) TableName() string { return "link" }
