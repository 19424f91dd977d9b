// Package composer provides the public API for embedding the data product
// composer. This is the stable API for external consumers.
package composer

import (
	"github.com/datakettle/dp-composer/internal/runtime"
)

// Composer is the main entry point for running the data product composer.
// See internal/runtime.Composer for full documentation.
type Composer = runtime.Composer

// Option is a functional option for configuring a Composer.
type Option = runtime.Option

// New creates a new Composer with the given options.
// Example:
//
//	comp, err := composer.New(
//	    composer.WithConfigFile("config.yaml"),
//	    composer.WithTopicsDir("./topics"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithConfigFile = runtime.WithConfigFile
	WithConfig     = runtime.WithConfig

	// Topic packs
	WithTopics    = runtime.WithTopics
	WithTopicsDir = runtime.WithTopicsDir

	// Advanced options
	WithLogger          = runtime.WithLogger
	WithStore           = runtime.WithStore
	WithCompleter       = runtime.WithCompleter
	WithCollector       = runtime.WithCollector
	WithMetricsRegistry = runtime.WithMetricsRegistry
)
