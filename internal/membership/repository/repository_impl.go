package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/membership/domain"
	"github.com/smallbiznis/uplink/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const renewalColumns = `member_id, next_renewal_date, last_renewed_at, in_grace_period, grace_period_start,
	total_renewals, low_balance_warned_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Schedule(ctx context.Context, db *gorm.DB, memberID snowflake.ID, activatedAt, next time.Time) error {
	row := domain.Renewal{
		MemberID:        memberID,
		NextRenewalDate: next,
		CreatedAt:       activatedAt,
		UpdatedAt:       activatedAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "member_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"next_renewal_date":     next,
				"in_grace_period":       false,
				"grace_period_start":    nil,
				"low_balance_warned_at": nil,
				"updated_at":            activatedAt,
			}),
		}).
		Create(&row).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*domain.Renewal, error) {
	return r.findOne(ctx, db, `SELECT `+renewalColumns+` FROM membership_renewals WHERE member_id = ?`, memberID)
}

func (r *repo) FindForUpdate(ctx context.Context, tx *gorm.DB, memberID snowflake.ID) (*domain.Renewal, error) {
	return r.findOne(ctx, tx, `SELECT `+renewalColumns+` FROM membership_renewals WHERE member_id = ?`+db.ForUpdateSuffix(tx), memberID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Renewal, error) {
	var item domain.Renewal
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.MemberID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListCandidates(ctx context.Context, db *gorm.DB, horizon time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT r.member_id
		 FROM membership_renewals r
		 JOIN members m ON m.id = r.member_id
		 WHERE m.is_active = ?
		   AND (r.next_renewal_date <= ? OR r.in_grace_period = ?)
		   AND r.member_id > ?
		 ORDER BY r.member_id ASC
		 LIMIT ?`,
		true,
		horizon,
		true,
		afterID,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) MarkRenewed(ctx context.Context, db *gorm.DB, memberID snowflake.ID, renewedAt, next time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE membership_renewals
		 SET next_renewal_date = ?, last_renewed_at = ?, total_renewals = total_renewals + 1,
		     in_grace_period = ?, grace_period_start = NULL, low_balance_warned_at = NULL, updated_at = ?
		 WHERE member_id = ?`,
		next,
		renewedAt,
		false,
		renewedAt,
		memberID,
	).Error
}

func (r *repo) StartGrace(ctx context.Context, db *gorm.DB, memberID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE membership_renewals
		 SET in_grace_period = ?, grace_period_start = ?, updated_at = ?
		 WHERE member_id = ? AND in_grace_period = ?`,
		true,
		at,
		at,
		memberID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ClearGrace(ctx context.Context, db *gorm.DB, memberID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE membership_renewals
		 SET in_grace_period = ?, grace_period_start = NULL, updated_at = ?
		 WHERE member_id = ?`,
		false,
		at,
		memberID,
	).Error
}

// MarkWarned records the low-balance warning once per shortfall.
func (r *repo) MarkWarned(ctx context.Context, db *gorm.DB, memberID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE membership_renewals
		 SET low_balance_warned_at = ?, updated_at = ?
		 WHERE member_id = ? AND low_balance_warned_at IS NULL`,
		at,
		at,
		memberID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
