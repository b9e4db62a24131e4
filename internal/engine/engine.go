// Package engine is the surface the presentation layer calls. Every operation
// returns a result shape that carries a stable error code instead of a Go error.
package engine

import (
	"context"

	"github.com/bwmarrin/snowflake"
	coursedomain "github.com/smallbiznis/uplink/internal/course/domain"
	"github.com/smallbiznis/uplink/internal/errs"
	griddomain "github.com/smallbiznis/uplink/internal/grid/domain"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	membershipdomain "github.com/smallbiznis/uplink/internal/membership/domain"
	obscontext "github.com/smallbiznis/uplink/internal/observability/context"
	"github.com/smallbiznis/uplink/internal/observability/logger"
	"github.com/smallbiznis/uplink/internal/observability/tracing"
	passupdomain "github.com/smallbiznis/uplink/internal/passup/domain"
	walletdomain "github.com/smallbiznis/uplink/internal/wallet/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Members    memberdomain.Service
	MemberRepo memberdomain.Repository
	Ledger     ledgerdomain.Service
	PassUp     passupdomain.Service
	Course     coursedomain.Service
	Grid       griddomain.Service
	Membership membershipdomain.Service
	Wallet     walletdomain.Service
}

type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	members    memberdomain.Service
	memberRepo memberdomain.Repository
	ledger     ledgerdomain.Service
	passup     passupdomain.Service
	course     coursedomain.Service
	grid       griddomain.Service
	membership membershipdomain.Service
	wallet     walletdomain.Service
}

func New(p Params) *Engine {
	return &Engine{
		db:         p.DB,
		log:        p.Log.Named("engine"),
		members:    p.Members,
		memberRepo: p.MemberRepo,
		ledger:     p.Ledger,
		passup:     p.PassUp,
		course:     p.Course,
		grid:       p.Grid,
		membership: p.Membership,
		wallet:     p.Wallet,
	}
}

var Module = fx.Module("engine",
	fx.Provide(New),
)

// Result is the common part of every engine response.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func failed(err error) Result {
	return Result{Error: errs.Code(err), Message: err.Error()}
}

type TierPurchaseResult struct {
	Result
	Outcome      coursedomain.Outcome `json:"outcome,omitempty"`
	Distribution []ledgerdomain.Entry `json:"distribution,omitempty"`
	Activations  int                  `json:"cascade_activations"`
}

type GridPurchaseResult struct {
	Result
	Outcome      griddomain.Outcome   `json:"outcome,omitempty"`
	SeatInfo     *griddomain.SeatInfo `json:"seat_info,omitempty"`
	Distribution []ledgerdomain.Entry `json:"distribution,omitempty"`
}

type MembershipResult struct {
	Result
	Activation *membershipdomain.ActivationResult `json:"activation,omitempty"`
}

type WithdrawalResult struct {
	Result
	WithdrawalID     snowflake.ID `json:"withdrawal_id,omitempty"`
	RemainingBalance int64        `json:"remaining_balance"`
}

type TransferResult struct {
	Result
	TransferID snowflake.ID `json:"transfer_id,omitempty"`
	NewBalance int64        `json:"new_balance"`
}

type SweepResult struct {
	Result
	membershipdomain.SweepResult
}

// operation tags ctx for logs and opens a span named after op.
func (e *Engine) operation(ctx context.Context, op string, memberID snowflake.ID, ref string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx = obscontext.WithOperation(ctx, op)
	if memberID != 0 {
		ctx = obscontext.WithMemberID(ctx, memberID.String())
	}
	if ref != "" {
		ctx = obscontext.WithExternalRef(ctx, ref)
	}
	attrs = append(attrs, attribute.String("operation", op))
	ctx, span := tracing.Start(ctx, "engine."+op, attrs...)
	log := logger.WithContext(ctx, e.log)
	return ctx, func(err error) {
		tracing.End(span, err)
		if err == nil {
			return
		}
		if errs.IsValidation(err) {
			log.Info("operation rejected", zap.String("code", errs.Code(err)), zap.Error(err))
			return
		}
		log.Error("operation failed", zap.Error(err))
	}
}

func (e *Engine) ProcessTierPurchase(ctx context.Context, buyerID, tierID snowflake.ID, externalRef string) TierPurchaseResult {
	ctx, done := e.operation(ctx, "tier_purchase", buyerID, externalRef, attribute.String("tier_id", tierID.String()))
	res, err := e.course.ProcessTierPurchase(ctx, buyerID, tierID, externalRef)
	done(err)
	if err != nil {
		return TierPurchaseResult{Result: failed(err)}
	}
	return TierPurchaseResult{
		Result:       Result{Success: true},
		Outcome:      res.Outcome,
		Distribution: res.Distribution,
		Activations:  len(res.Activations),
	}
}

func (e *Engine) ProcessGridPurchase(ctx context.Context, buyerID, tierID snowflake.ID, externalRef string) GridPurchaseResult {
	ctx, done := e.operation(ctx, "grid_purchase", buyerID, externalRef, attribute.String("tier_id", tierID.String()))
	res, err := e.grid.ProcessGridPurchase(ctx, buyerID, tierID, externalRef)
	done(err)
	if err != nil {
		return GridPurchaseResult{Result: failed(err)}
	}
	return GridPurchaseResult{
		Result:       Result{Success: true},
		Outcome:      res.Outcome,
		SeatInfo:     res.Seat,
		Distribution: res.Distribution,
	}
}

func (e *Engine) ProcessMembershipPayment(ctx context.Context, memberID snowflake.ID, externalRef string) MembershipResult {
	ctx, done := e.operation(ctx, "membership_payment", memberID, externalRef)
	res, err := e.membership.ProcessMembershipPayment(ctx, memberID, externalRef)
	done(err)
	if err != nil {
		return MembershipResult{Result: failed(err)}
	}
	return MembershipResult{Result: Result{Success: true, Message: "membership activated"}, Activation: &res}
}

func (e *Engine) RequestWithdrawal(ctx context.Context, memberID snowflake.ID, amount int64) WithdrawalResult {
	ctx, done := e.operation(ctx, "withdrawal", memberID, "", attribute.Int64("amount", amount))
	res, err := e.wallet.RequestWithdrawal(ctx, memberID, amount)
	done(err)
	if err != nil {
		return WithdrawalResult{Result: failed(err)}
	}
	return WithdrawalResult{
		Result:           Result{Success: true},
		WithdrawalID:     res.WithdrawalID,
		RemainingBalance: res.RemainingBalance,
	}
}

func (e *Engine) Transfer(ctx context.Context, senderID snowflake.ID, recipient string, amount int64, note string) TransferResult {
	ctx, done := e.operation(ctx, "transfer", senderID, "", attribute.Int64("amount", amount))
	res, err := e.wallet.Transfer(ctx, walletdomain.TransferRequest{
		SenderID:  senderID,
		Recipient: recipient,
		Amount:    amount,
		Note:      note,
	})
	done(err)
	if err != nil {
		return TransferResult{Result: failed(err)}
	}
	return TransferResult{
		Result:     Result{Success: true},
		TransferID: res.TransferID,
		NewBalance: res.NewBalance,
	}
}

func (e *Engine) RunRenewalSweep(ctx context.Context) SweepResult {
	ctx, done := e.operation(ctx, "renewal_sweep", 0, "")
	res, err := e.membership.RunRenewalSweep(ctx)
	done(err)
	if err != nil {
		return SweepResult{Result: failed(err), SweepResult: res}
	}
	return SweepResult{Result: Result{Success: true}, SweepResult: res}
}
