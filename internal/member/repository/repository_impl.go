package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/pkg/db"
	"gorm.io/gorm"
)

const memberColumns = `id, handle, email, wallet_address, sponsor_id, balance, total_earned,
	total_withdrawn, is_active, is_admin, personal_referral_count, team_size, created_at, updated_at`

type repo struct {
	clock clock.Clock
}

func Provide(clk clock.Clock) domain.Repository {
	return &repo{clock: clk}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO members (`+memberColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Handle,
		m.Email,
		m.WalletAddress,
		m.SponsorID,
		m.Balance,
		m.TotalEarned,
		m.TotalWithdrawn,
		m.IsActive,
		m.IsAdmin,
		m.PersonalReferralCount,
		m.TeamSize,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	return r.findOne(ctx, db, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	return r.findOne(ctx, tx, `SELECT `+memberColumns+` FROM members WHERE id = ?`+db.ForUpdateSuffix(tx), id)
}

func (r *repo) FindByHandle(ctx context.Context, db *gorm.DB, handle string) (*domain.Member, error) {
	return r.findOne(ctx, db, `SELECT `+memberColumns+` FROM members WHERE handle = ?`, handle)
}

func (r *repo) FindAdmin(ctx context.Context, db *gorm.DB) (*domain.Member, error) {
	return r.findOne(ctx, db, `SELECT `+memberColumns+` FROM members WHERE is_admin = ? ORDER BY id ASC LIMIT 1`, true)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Member, error) {
	var item domain.Member
	err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SetSponsor(ctx context.Context, db *gorm.DB, id, sponsorID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE members SET sponsor_id = ?, updated_at = ?
		 WHERE id = ? AND sponsor_id IS NULL`,
		sponsorID,
		r.clock.Now(),
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetWalletAddress(ctx context.Context, db *gorm.DB, id snowflake.ID, address string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE members SET wallet_address = ?, updated_at = ? WHERE id = ?`,
		address,
		r.clock.Now(),
		id,
	).Error
}

func (r *repo) IncrementReferralCount(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE members SET personal_referral_count = personal_referral_count + 1, updated_at = ? WHERE id = ?`,
		r.clock.Now(),
		id,
	).Error
}

func (r *repo) IncrementTeamSize(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE members SET team_size = team_size + 1, updated_at = ? WHERE id = ?`,
		r.clock.Now(),
		id,
	).Error
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, earning bool) error {
	earned := int64(0)
	if earning {
		earned = amount
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE members
		 SET balance = balance + ?, total_earned = total_earned + ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		earned,
		r.clock.Now(),
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Debit only applies when the balance covers amount; false means it did not.
func (r *repo) Debit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE members SET balance = balance - ?, updated_at = ?
		 WHERE id = ? AND balance >= ?`,
		amount,
		r.clock.Now(),
		id,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Withdraw(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE members
		 SET balance = balance - ?, total_withdrawn = total_withdrawn + ?, updated_at = ?
		 WHERE id = ? AND balance >= ?`,
		amount,
		amount,
		r.clock.Now(),
		id,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Activate flips is_active false->true. Only the caller that performed the flip gets true.
func (r *repo) Activate(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE members SET is_active = ?, updated_at = ? WHERE id = ? AND is_active = ?`,
		true,
		r.clock.Now(),
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ActivateWithFee pays the membership fee from balance and activates in one
// statement, so concurrent credits cannot activate or charge a member twice.
func (r *repo) ActivateWithFee(ctx context.Context, db *gorm.DB, id snowflake.ID, fee int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE members SET is_active = ?, balance = balance - ?, updated_at = ?
		 WHERE id = ? AND is_active = ? AND balance >= ?`,
		true,
		fee,
		r.clock.Now(),
		id,
		false,
		fee,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE members SET is_active = ?, updated_at = ? WHERE id = ? AND is_active = ?`,
		false,
		r.clock.Now(),
		id,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindTier(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tier, error) {
	var item domain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, level, name, price FROM tiers WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListTiers(ctx context.Context, db *gorm.DB, kind domain.TierKind) ([]domain.Tier, error) {
	var items []domain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, level, name, price FROM tiers WHERE kind = ? ORDER BY level ASC`,
		kind,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertPurchase(ctx context.Context, db *gorm.DB, p *domain.Purchase) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO purchases (id, member_id, tier_id, tier_kind, tier_level, amount_paid, external_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.MemberID,
		p.TierID,
		p.TierKind,
		p.TierLevel,
		p.AmountPaid,
		p.ExternalRef,
		p.CreatedAt,
	).Error
}

func (r *repo) HasPurchase(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM purchases WHERE member_id = ? AND tier_id = ?`,
		memberID,
		tierID,
	).Scan(&count).Error
	return count > 0, err
}

// OwnsTierLevel holds when the member bought level or any higher level of kind.
func (r *repo) OwnsTierLevel(ctx context.Context, db *gorm.DB, memberID snowflake.ID, kind domain.TierKind, level int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM purchases WHERE member_id = ? AND tier_kind = ? AND tier_level >= ?`,
		memberID,
		kind,
		level,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListPurchases(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]domain.Purchase, error) {
	var items []domain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT id, member_id, tier_id, tier_kind, tier_level, amount_paid, external_ref, created_at
		 FROM purchases WHERE member_id = ? ORDER BY tier_level ASC`,
		memberID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
