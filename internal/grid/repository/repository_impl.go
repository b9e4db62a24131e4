package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/grid/domain"
	"github.com/smallbiznis/uplink/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const gridColumns = `id, owner_id, tier_id, advance, width, depth, seats_filled, revenue_total,
	is_complete, completed_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, grid *domain.Grid) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "tier_id"}, {Name: "advance"}},
			DoNothing: true,
		}).
		Create(grid)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Grid, error) {
	return r.findOne(ctx, db, `SELECT `+gridColumns+` FROM grids WHERE id = ?`, id)
}

func (r *repo) FindOpenForUpdate(ctx context.Context, tx *gorm.DB, ownerID, tierID snowflake.ID) (*domain.Grid, error) {
	return r.findOne(ctx, tx,
		`SELECT `+gridColumns+` FROM grids
		 WHERE owner_id = ? AND tier_id = ? AND is_complete = ?
		 ORDER BY advance ASC LIMIT 1`+db.ForUpdateSuffix(tx),
		ownerID,
		tierID,
		false,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Grid, error) {
	var item domain.Grid
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CountByOwnerTier(ctx context.Context, db *gorm.DB, ownerID, tierID snowflake.ID) (int, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM grids WHERE owner_id = ? AND tier_id = ?`,
		ownerID,
		tierID,
	).Scan(&count).Error
	return int(count), err
}

func (r *repo) ClaimSeat(ctx context.Context, db *gorm.DB, gridID snowflake.ID, expected int, amount int64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE grids
		 SET seats_filled = seats_filled + 1, revenue_total = revenue_total + ?, updated_at = ?
		 WHERE id = ? AND seats_filled = ? AND is_complete = ? AND seats_filled < width * depth`,
		amount,
		at,
		gridID,
		expected,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkComplete(ctx context.Context, db *gorm.DB, gridID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE grids SET is_complete = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND is_complete = ?`,
		true,
		at,
		at,
		gridID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertSeat(ctx context.Context, db *gorm.DB, seat *domain.Seat) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO grid_seats (id, grid_id, member_id, level, position, is_overspill, external_ref, amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seat.ID,
		seat.GridID,
		seat.MemberID,
		seat.Level,
		seat.Position,
		seat.IsOverspill,
		seat.ExternalRef,
		seat.Amount,
		seat.CreatedAt,
	).Error
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]domain.Grid, error) {
	var items []domain.Grid
	err := db.WithContext(ctx).Raw(
		`SELECT `+gridColumns+` FROM grids WHERE owner_id = ? ORDER BY tier_id ASC, advance DESC`,
		ownerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSeats(ctx context.Context, db *gorm.DB, gridID snowflake.ID) ([]domain.Seat, error) {
	var items []domain.Seat
	err := db.WithContext(ctx).Raw(
		`SELECT id, grid_id, member_id, level, position, is_overspill, external_ref, amount, created_at
		 FROM grid_seats WHERE grid_id = ? ORDER BY level ASC, position ASC`,
		gridID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
