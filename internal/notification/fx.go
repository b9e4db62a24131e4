package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/config"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("notification",
	fx.Provide(NewMemberAddressBook),
	fx.Provide(NewStoreNotifier),
	fx.Provide(NewNotifier),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Store  *StoreNotifier
	Book   AddressBook
}

func NewNotifier(p Params) Notifier {
	notifiers := Multi{NewLogNotifier(p.Log), p.Store}
	if p.Config.SMTP.Enabled() {
		notifiers = append(notifiers, NewMailNotifier(p.Config.SMTP, p.Book, p.Log))
	}
	return notifiers
}

type memberAddressBook struct {
	db   *gorm.DB
	repo memberdomain.Repository
}

func NewMemberAddressBook(db *gorm.DB, repo memberdomain.Repository) AddressBook {
	return &memberAddressBook{db: db, repo: repo}
}

func (b *memberAddressBook) EmailFor(ctx context.Context, memberID snowflake.ID) (string, error) {
	m, err := b.repo.FindByID(ctx, b.db.WithContext(ctx), memberID)
	if err != nil || m == nil {
		return "", err
	}
	return m.Email, nil
}
