// Package config centralizes environment-variable precedence and option
// defaults into one place read once at process startup.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/kittclouds/memori/internal/metadata"
)

const defaultDSN = "memori.db"

// DatabaseURL resolves the DSN: MEMORI_DATABASE_URL, then DATABASE_URL,
// then a fixed local-file fallback.
func DatabaseURL() string {
	if v := os.Getenv("MEMORI_DATABASE_URL"); v != "" {
		return v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	return defaultDSN
}

// HookTimeout resolves the capture layer's hook timeout from
// MEMORI_HOOK_TIMEOUT_SECONDS, defaulting to 30s.
func HookTimeout() time.Duration {
	const fallback = 30 * time.Second
	v := os.Getenv("MEMORI_HOOK_TIMEOUT_SECONDS")
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// MetadataConfig resolves the metadata strategy's option groups
// (fields/aggregation/validation/performance) from environment variables.
func MetadataConfig() metadata.Config {
	return metadata.Config{
		Fields: metadata.FieldOptions{
			EnableNestedAccess:   envBool("MEMORI_METADATA_ALLOW_NESTED_FIELDS", false),
			MaxDepth:             envInt("MEMORI_METADATA_MAX_FILTER_DEPTH", 5),
			EnableTypeValidation: envBool("MEMORI_METADATA_TYPE_VALIDATION", true),
			EnableFieldDiscovery: envBool("MEMORI_METADATA_FIELD_DISCOVERY", false),
		},
		Aggregation: metadata.AggregationOptions{
			Enable:         envBool("MEMORI_METADATA_ENABLE_AGGREGATION", true),
			MaxGroupFields: envInt("MEMORI_METADATA_MAX_GROUP_FIELDS", 3),
		},
		Validation: metadata.ValidationOptions{
			Strict:                envBool("MEMORI_METADATA_STRICT", true),
			FailOnInvalidMetadata: envBool("MEMORI_METADATA_FAIL_ON_INVALID", false),
		},
		Performance: metadata.PerformanceOptions{
			EnableQueryOptimization: envBool("MEMORI_METADATA_ENABLE_QUERY_OPT", true),
			EnableResultCaching:     envBool("MEMORI_METADATA_ENABLE_CACHING", true),
			MaxExecutionTimeMillis:  envInt("MEMORI_METADATA_MAX_EXEC_MS", 100),
			BatchSize:               envInt("MEMORI_METADATA_BATCH_SIZE", 100),
			CacheSize:               envInt("MEMORI_METADATA_CACHE_SIZE", 256),
		},
	}
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
