package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/passup/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) error {
	row := domain.Tracker{MemberID: memberID, TierID: tierID, UpdatedAt: at}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (*domain.Tracker, error) {
	var items []domain.Tracker
	err := db.WithContext(ctx).Raw(
		`SELECT member_id, tier_id, sales_count, first_passed_up, updated_at
		 FROM passup_trackers
		 WHERE member_id = ? AND tier_id = ?`,
		memberID,
		tierID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) IncrementSales(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE passup_trackers SET sales_count = sales_count + 1, updated_at = ?
		 WHERE member_id = ? AND tier_id = ?`,
		at,
		memberID,
		tierID,
	).Error
}

func (r *repo) MarkFirstPassedUp(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE passup_trackers SET first_passed_up = ?, updated_at = ?
		 WHERE member_id = ? AND tier_id = ? AND first_passed_up = ?`,
		true,
		at,
		memberID,
		tierID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ConsumeUntouched(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE passup_trackers SET first_passed_up = ?, sales_count = sales_count + 1, updated_at = ?
		 WHERE member_id = ? AND tier_id = ? AND first_passed_up = ? AND sales_count = 0`,
		true,
		at,
		memberID,
		tierID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]domain.Tracker, error) {
	var items []domain.Tracker
	err := db.WithContext(ctx).Raw(
		`SELECT member_id, tier_id, sales_count, first_passed_up, updated_at
		 FROM passup_trackers
		 WHERE member_id = ?
		 ORDER BY tier_id ASC`,
		memberID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
