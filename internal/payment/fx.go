package payment

import (
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/payment/adapters/oracle"
	"github.com/smallbiznis/uplink/internal/payment/adapters/static"
	paymentdomain "github.com/smallbiznis/uplink/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.verifier",
	fx.Provide(NewVerifier),
)

// NewVerifier picks the oracle client, or the permissive dev verifier when
// explicitly allowed outside production. Without either every payment fails verification.
func NewVerifier(cfg config.Config, log *zap.Logger) paymentdomain.Verifier {
	switch {
	case cfg.Verifier.Endpoint != "":
		return oracle.New(cfg.Verifier.Endpoint, cfg.Verifier.Timeout, log)
	case cfg.Verifier.AllowAll:
		log.Warn("payment verification disabled: every payment is accepted")
		return static.AllowAll()
	default:
		log.Warn("no payment verifier configured: every payment will be rejected")
		return static.DenyAll()
	}
}
