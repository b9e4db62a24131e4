package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notification")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event, memberID snowflake.ID, data map[string]any) error {
	n.log.Info("notify",
		zap.String("event", string(event)),
		zap.String("member_id", memberID.String()),
		zap.Any("data", data),
	)
	return nil
}
