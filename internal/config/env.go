package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COURSESEARCH_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv reads the COURSESEARCH_* overrides from the process environment.
func FromEnv() (Layer, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads overrides through lookup. Empty values are ignored.
//
//	COURSESEARCH_BASE_URL, COURSESEARCH_TIMEOUT, COURSESEARCH_RATE_LIMIT,
//	COURSESEARCH_BURST, COURSESEARCH_ADDR, COURSESEARCH_BASE_PATH,
//	COURSESEARCH_CATALOG_DRIVER, COURSESEARCH_CATALOG_DSN,
//	COURSESEARCH_CATALOG_SEED, COURSESEARCH_LOG_LEVEL,
//	COURSESEARCH_LOG_FORMAT, COURSESEARCH_EVALUATOR,
//	COURSESEARCH_PRESETS_DIR, COURSESEARCH_PRESETS_OWNER
func FromLookup(lookup LookupFunc) (Layer, error) {
	var layer Layer
	get := func(name string) (string, bool) {
		value, ok := lookup(EnvPrefix + name)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
	str := func(name string, dst **string) {
		if value, ok := get(name); ok {
			*dst = &value
		}
	}

	str("BASE_URL", &layer.Service.BaseURL)
	str("ADDR", &layer.Server.Addr)
	str("BASE_PATH", &layer.Server.BasePath)
	str("CATALOG_DRIVER", &layer.Catalog.Driver)
	str("CATALOG_DSN", &layer.Catalog.DSN)
	str("CATALOG_SEED", &layer.Catalog.Seed)
	str("LOG_LEVEL", &layer.Log.Level)
	str("LOG_FORMAT", &layer.Log.Format)
	str("EVALUATOR", &layer.Rules.Evaluator)
	str("PRESETS_DIR", &layer.Presets.Dir)
	str("PRESETS_OWNER", &layer.Presets.Owner)

	if value, ok := get("TIMEOUT"); ok {
		d, perr := time.ParseDuration(value)
		if perr != nil {
			return Layer{}, fmt.Errorf("config: %sTIMEOUT: %w", EnvPrefix, perr)
		}
		layer.Service.Timeout = &d
	}
	if value, ok := get("RATE_LIMIT"); ok {
		f, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return Layer{}, fmt.Errorf("config: %sRATE_LIMIT: %w", EnvPrefix, perr)
		}
		layer.Service.RateLimit = &f
	}
	if value, ok := get("BURST"); ok {
		n, perr := strconv.Atoi(value)
		if perr != nil {
			return Layer{}, fmt.Errorf("config: %sBURST: %w", EnvPrefix, perr)
		}
		layer.Service.Burst = &n
	}
	return layer, nil
}
