package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/config"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// AddressBook resolves a member's email address. An empty address skips delivery.
type AddressBook interface {
	EmailFor(ctx context.Context, memberID snowflake.ID) (string, error)
}

type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type MailNotifier struct {
	from   string
	sender Sender
	book   AddressBook
	log    *zap.Logger
}

func NewMailNotifier(cfg config.SMTPConfig, book AddressBook, log *zap.Logger) *MailNotifier {
	return NewMailNotifierWithSender(cfg.From, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), book, log)
}

func NewMailNotifierWithSender(from string, sender Sender, book AddressBook, log *zap.Logger) *MailNotifier {
	return &MailNotifier{from: from, sender: sender, book: book, log: log.Named("notification.mail")}
}

func (n *MailNotifier) Notify(ctx context.Context, event Event, memberID snowflake.ID, data map[string]any) error {
	to, err := n.book.EmailFor(ctx, memberID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		n.log.Debug("no email on file", zap.String("member_id", memberID.String()))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", event.Subject())
	m.SetBody("text/plain", renderBody(event, data))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s mail: %w", event, err)
	}
	return nil
}

func renderBody(event Event, data map[string]any) string {
	var b strings.Builder
	b.WriteString(event.Subject())
	b.WriteString("\n")
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, data[k])
	}
	return b.String()
}
