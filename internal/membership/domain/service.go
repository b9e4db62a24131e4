package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ProcessMembershipPayment(ctx context.Context, memberID snowflake.ID, externalRef string) (ActivationResult, error)
	RunRenewalSweep(ctx context.Context) (SweepResult, error)
	Status(ctx context.Context, memberID snowflake.ID) (Status, error)
}
