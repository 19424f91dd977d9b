package runtime

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/datakettle/dp-composer/internal/config"
	"github.com/datakettle/dp-composer/internal/llm"
	"github.com/datakettle/dp-composer/internal/metrics"
	"github.com/datakettle/dp-composer/internal/store"
	"github.com/datakettle/dp-composer/internal/topics"
)

// Option is a functional option for configuring a Composer.
type Option func(*Composer) error

// WithConfigFile loads configuration from the given YAML file (default:
// config.yaml next to the binary), merged with COMPOSER_ env overrides.
func WithConfigFile(path string) Option {
	return func(c *Composer) error {
		c.configPath = path
		return nil
	}
}

// WithConfig uses an already-loaded configuration.
// For advanced use cases where the embedder owns config loading.
func WithConfig(cfg *config.Config) Option {
	return func(c *Composer) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		c.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) error {
		c.logger = logger
		return nil
	}
}

// WithStore uses a custom state store instead of the configured driver.
func WithStore(st store.Store) Option {
	return func(c *Composer) error {
		if st == nil {
			return fmt.Errorf("store cannot be nil")
		}
		c.store = st
		return nil
	}
}

// WithCompleter uses a custom completion client instead of the configured
// provider. Useful for embedding with an in-process model or for tests.
func WithCompleter(completer llm.Completer) Option {
	return func(c *Composer) error {
		if completer == nil {
			return fmt.Errorf("completer cannot be nil")
		}
		c.completer = completer
		return nil
	}
}

// WithTopics uses a custom topic registry instead of the built-in pack.
func WithTopics(registry *topics.Registry) Option {
	return func(c *Composer) error {
		if registry == nil {
			return fmt.Errorf("topic registry cannot be nil")
		}
		c.registry = registry
		return nil
	}
}

// WithTopicsDir overlays per-topic YAML overrides from dir, taking
// precedence over the configured topics.dir.
func WithTopicsDir(dir string) Option {
	return func(c *Composer) error {
		c.topicsDir = dir
		return nil
	}
}

// WithCollector uses an already-registered metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Composer) error {
		c.collector = collector
		return nil
	}
}

// WithMetricsRegistry registers the composer's instruments with reg and
// serves /metrics from it, instead of the process-wide default registry.
// Embedders running several composers need one registry each.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *Composer) error {
		if reg == nil {
			return fmt.Errorf("metrics registry cannot be nil")
		}
		c.registerer = reg
		c.gatherer = reg
		return nil
	}
}
