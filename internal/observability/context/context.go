// Package context carries correlation fields for logs and spans.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	externalRefKey ctxKey = iota
	memberIDKey
	operationKey
)

func WithExternalRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, externalRefKey, strings.TrimSpace(ref))
}

func ExternalRefFromContext(ctx context.Context) string {
	v, _ := ctx.Value(externalRefKey).(string)
	return v
}

func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, memberIDKey, strings.TrimSpace(memberID))
}

func MemberIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(memberIDKey).(string)
	return v
}

func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

func OperationFromContext(ctx context.Context) string {
	v, _ := ctx.Value(operationKey).(string)
	return v
}
