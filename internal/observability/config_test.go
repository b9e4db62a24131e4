package observability

import (
	"testing"

	"github.com/smallbiznis/uplink/internal/config"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DEPLOYMENT_ENV", "SERVICE_VERSION", "OTEL_ENABLED", "OTEL_RESOURCE_ATTRIBUTES"} {
		t.Setenv(key, "")
	}
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsString()
	}
	return out
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg := LoadConfig(config.Config{Environment: "test", AppVersion: "1.2.3", NodeID: 3, DBType: "Postgres"})

	assert.Equal(t, "uplink", cfg.ServiceName)
	assert.Equal(t, "uplink-3", cfg.InstanceID)
	assert.Equal(t, "postgres", cfg.DBSystem)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestResourceAttributes(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "region=eu-west, team = payouts,broken,service.name=spoofed,empty=")

	cfg := LoadConfig(config.Config{AppName: "uplink-worker", Environment: "production", AppVersion: "2.0.0", NodeID: 7, DBType: "mysql"})
	attrs := attrMap(cfg.ResourceAttributes())

	assert.Equal(t, map[string]string{
		"service.name":           "uplink-worker",
		"service.namespace":      "compensation",
		"service.version":        "2.0.0",
		"service.instance.id":    "uplink-worker-7",
		"deployment.environment": "production",
		"db.system":              "mysql",
		"region":                 "eu-west",
		"team":                   "payouts",
	}, attrs)
	assert.False(t, cfg.Debug())
}
