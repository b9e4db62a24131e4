package observability

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/uplink/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

// serviceNamespace is shared by every uplink binary.
const serviceNamespace = "compensation"

// Config holds observability configuration derived from environment variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	// InstanceID is derived from the snowflake node id.
	InstanceID string

	// DBSystem tags telemetry with the ledger's storage dialect.
	DBSystem string

	// ExtraAttributes come from OTEL_RESOURCE_ATTRIBUTES.
	ExtraAttributes map[string]string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "uplink"
	}
	environment := getenv("DEPLOYMENT_ENV", cfg.Environment)
	version := getenv("SERVICE_VERSION", cfg.AppVersion)
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json")))
	otlpEndpoint := getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	otlpProtocol := strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))
	if tracesProtocol := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); tracesProtocol != "" {
		otlpProtocol = strings.ToLower(tracesProtocol)
	}

	samplingRatio := getenvFloat("OTEL_SAMPLING_RATIO", 0.1)
	enabled := getenvBool("OTEL_ENABLED", false)

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(environment),
		Version:              strings.TrimSpace(version),
		InstanceID:           fmt.Sprintf("%s-%d", serviceName, cfg.NodeID),
		DBSystem:             strings.ToLower(strings.TrimSpace(cfg.DBType)),
		ExtraAttributes:      parseResourceAttributes(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")),
		LogLevel:             logLevel,
		LogFormat:            logFormat,
		OtelEnabled:          enabled,
		OtelExporterEndpoint: strings.TrimSpace(otlpEndpoint),
		OtelExporterProtocol: otlpProtocol,
		OtelSamplingRatio:    samplingRatio,
	}
}

// ResourceAttributes describes this process to traces and metrics.
// Extra attributes never override the derived ones.
func (c Config) ResourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.namespace", serviceNamespace),
		attribute.String("service.version", c.Version),
		attribute.String("service.instance.id", c.InstanceID),
		attribute.String("deployment.environment", c.Environment),
	}
	if c.DBSystem != "" {
		attrs = append(attrs, attribute.String("db.system", c.DBSystem))
	}
	reserved := make(map[attribute.Key]struct{}, len(attrs))
	for _, kv := range attrs {
		reserved[kv.Key] = struct{}{}
	}
	keys := make([]string, 0, len(c.ExtraAttributes))
	for k := range c.ExtraAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, taken := reserved[attribute.Key(k)]; taken {
			continue
		}
		attrs = append(attrs, attribute.String(k, c.ExtraAttributes[k]))
	}
	return attrs
}

// parseResourceAttributes reads the OTEL_RESOURCE_ATTRIBUTES "k=v,k=v" form.
// Malformed pairs are skipped.
func parseResourceAttributes(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func (c Config) Debug() bool {
	level := strings.ToLower(strings.TrimSpace(c.LogLevel))
	if level == "debug" {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	switch env {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
