package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const entryColumns = `id, entry_key, external_ref, source_type, source_id, buyer_id, earner_id,
	tier_id, amount, type, depth, note, metadata, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ClaimPayment(ctx context.Context, db *gorm.DB, p *domain.ExternalPayment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(doNothingOn("ref")).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, ref string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE external_payments SET status = ?, processed_at = ? WHERE ref = ?`,
		domain.PaymentStatusProcessed,
		at,
		ref,
	).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, ref string) (*domain.ExternalPayment, error) {
	var item domain.ExternalPayment
	err := db.WithContext(ctx).Raw(
		`SELECT ref, kind, member_id, expected_recipient, expected_amount, status, verified_at, processed_at
		 FROM external_payments WHERE ref = ? LIMIT 1`,
		ref,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Ref == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, e *domain.Entry) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(doNothingOn("entry_key")).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// doNothingOn renders ON CONFLICT DO NOTHING, or the MySQL no-op upsert.
func doNothingOn(column string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoNothing: true,
	}
}

func (r *repo) ListByEarner(ctx context.Context, db *gorm.DB, earnerID, afterID snowflake.ID, limit int) ([]domain.Entry, error) {
	var items []domain.Entry
	stmt := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE earner_id = ?`
	args := []any{earnerID}
	if afterID != 0 {
		stmt += ` AND id < ?`
		args = append(args, afterID)
	}
	stmt += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByExternalRef(ctx context.Context, db *gorm.DB, ref string) ([]domain.Entry, error) {
	var items []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM ledger_entries WHERE external_ref = ? ORDER BY id ASC`,
		ref,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumByExternalRef(ctx context.Context, db *gorm.DB, ref string, sources []domain.SourceType) (int64, error) {
	var total int64
	stmt := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("external_ref = ?", ref)
	if len(sources) > 0 {
		stmt = stmt.Where("source_type IN ?", sources)
	}
	if err := stmt.Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) SumByEarnerAndType(ctx context.Context, db *gorm.DB, earnerID snowflake.ID) (map[domain.CommissionType]int64, error) {
	var rows []struct {
		Type  domain.CommissionType
		Total int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT type, COALESCE(SUM(amount), 0) AS total
		 FROM ledger_entries WHERE earner_id = ?
		 GROUP BY type`,
		earnerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.CommissionType]int64, len(rows))
	for _, row := range rows {
		out[row.Type] = row.Total
	}
	return out, nil
}

func (r *repo) PlatformTotal(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE earner_id IS NULL`,
	).Scan(&total).Error
	return total, err
}
