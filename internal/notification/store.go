package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is an in-app notice kept for the member's inbox.
type Notification struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	MemberID  snowflake.ID      `gorm:"not null;index"`
	Event     Event             `gorm:"size:64;not null"`
	Title     string            `gorm:"type:text;not null"`
	Data      datatypes.JSONMap
	IsRead    bool              `gorm:"not null;default:false"`
	CreatedAt time.Time         `gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

type StoreNotifier struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewStoreNotifier(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) *StoreNotifier {
	return &StoreNotifier{db: db, genID: genID, clock: clk}
}

func (n *StoreNotifier) Notify(ctx context.Context, event Event, memberID snowflake.ID, data map[string]any) error {
	row := Notification{
		ID:        n.genID.Generate(),
		MemberID:  memberID,
		Event:     event,
		Title:     event.Subject(),
		Data:      datatypes.JSONMap(data),
		CreatedAt: n.clock.Now(),
	}
	return n.db.WithContext(ctx).Create(&row).Error
}

// Unread lists a member's unread notices, newest first.
func (n *StoreNotifier) Unread(ctx context.Context, memberID snowflake.ID, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Notification
	err := n.db.WithContext(ctx).
		Where("member_id = ? AND is_read = ?", memberID, false).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (n *StoreNotifier) MarkRead(ctx context.Context, memberID, id snowflake.ID) error {
	return n.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND member_id = ?", id, memberID).
		Update("is_read", true).Error
}
