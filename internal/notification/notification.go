// Package notification delivers member-facing notices. Delivery happens after
// commit and never affects engine state.
package notification

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type Event string

const (
	EventCommissionEarned    Event = "commission_earned"
	EventMemberAutoActivated Event = "member_auto_activated"
	EventMembershipActivated Event = "membership_activated"
	EventMembershipRenewed   Event = "membership_renewed"
	EventRenewalLowBalance   Event = "renewal_low_balance"
	EventGracePeriodStarted  Event = "grace_period_started"
	EventMembershipLapsed    Event = "membership_lapsed"
	EventTransferReceived    Event = "transfer_received"
	EventWithdrawalRequested Event = "withdrawal_requested"
	EventGridCompleted       Event = "grid_completed"
)

// Subject is the human-readable title for an event.
func (e Event) Subject() string {
	switch e {
	case EventCommissionEarned:
		return "You earned a commission"
	case EventMemberAutoActivated:
		return "Your membership was activated from your earnings"
	case EventMembershipActivated:
		return "Your membership is active"
	case EventMembershipRenewed:
		return "Your membership was renewed"
	case EventRenewalLowBalance:
		return "Your balance is too low for the upcoming renewal"
	case EventGracePeriodStarted:
		return "Your membership is in its grace period"
	case EventMembershipLapsed:
		return "Your membership has lapsed"
	case EventTransferReceived:
		return "You received a transfer"
	case EventWithdrawalRequested:
		return "Withdrawal requested"
	case EventGridCompleted:
		return "Your grid is complete"
	default:
		return string(e)
	}
}

type Notifier interface {
	Notify(ctx context.Context, event Event, memberID snowflake.ID, data map[string]any) error
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event, memberID snowflake.ID, data map[string]any) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event, memberID, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notice is a queued notification, collected inside a transaction and sent after it commits.
type Notice struct {
	Event    Event
	MemberID snowflake.ID
	Data     map[string]any
}

// Dispatch sends notices and logs failures. It never returns an error.
func Dispatch(ctx context.Context, n Notifier, log *zap.Logger, notices ...Notice) {
	if n == nil {
		return
	}
	for _, notice := range notices {
		if err := n.Notify(ctx, notice.Event, notice.MemberID, notice.Data); err != nil {
			log.Warn("notification failed",
				zap.String("event", string(notice.Event)),
				zap.String("member_id", notice.MemberID.String()),
				zap.Error(err),
			)
		}
	}
}
