package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	courseTierBase = 100
	gridTierBase   = 200

	defaultAdminHandle = "platform"
	defaultAdminEmail  = "admin@uplink.local"
)

// CourseTierID and GridTierID give catalogue tiers stable ids so that external
// callers can address them before any lookup.
func CourseTierID(level int) snowflake.ID { return snowflake.ID(courseTierBase + level) }
func GridTierID(level int) snowflake.ID   { return snowflake.ID(gridTierBase + level) }

var coursePrices = []int64{10_000, 30_000, 50_000}

var gridPrices = []int64{2_000, 5_000, 10_000, 20_000, 40_000, 60_000, 80_000, 100_000}

// Catalogue returns the seeded tier list, course tiers first.
func Catalogue() []memberdomain.Tier {
	tiers := make([]memberdomain.Tier, 0, len(coursePrices)+len(gridPrices))
	for i, price := range coursePrices {
		level := i + 1
		tiers = append(tiers, memberdomain.Tier{
			ID:    CourseTierID(level),
			Kind:  memberdomain.TierKindCourse,
			Level: level,
			Name:  fmt.Sprintf("Course Tier %d", level),
			Price: price,
		})
	}
	for i, price := range gridPrices {
		level := i + 1
		tiers = append(tiers, memberdomain.Tier{
			ID:    GridTierID(level),
			Kind:  memberdomain.TierKindGrid,
			Level: level,
			Name:  fmt.Sprintf("Grid Tier %d", level),
			Price: price,
		})
	}
	return tiers
}

// EnsureCatalogue inserts missing tiers. Existing rows are left untouched.
func EnsureCatalogue(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	tiers := Catalogue()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&tiers).Error
}

// EnsurePlatformAdmin creates the platform admin member when none exists.
// The admin is the root of the sponsor forest and always active.
func EnsurePlatformAdmin(ctx context.Context, db *gorm.DB, node *snowflake.Node, wallet string) (memberdomain.Member, error) {
	if db == nil {
		return memberdomain.Member{}, errors.New("seed database handle is required")
	}

	var admin memberdomain.Member
	err := db.WithContext(ctx).Where("is_admin = ?", true).Order("id ASC").First(&admin).Error
	if err == nil {
		return admin, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return admin, err
	}

	now := time.Now().UTC()
	admin = memberdomain.Member{
		ID:            node.Generate(),
		Handle:        defaultAdminHandle,
		Email:         defaultAdminEmail,
		WalletAddress: wallet,
		IsActive:      true,
		IsAdmin:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return admin, err
	}
	return admin, nil
}

// Run seeds the catalogue and the platform admin in one transaction.
func Run(ctx context.Context, db *gorm.DB, node *snowflake.Node, platformWallet string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := EnsureCatalogue(ctx, tx); err != nil {
			return err
		}
		_, err := EnsurePlatformAdmin(ctx, tx, node, platformWallet)
		return err
	})
}
