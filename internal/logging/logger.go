// Package logging provides config-driven categorized logging for chauffe.
// Every category is a named child of one zap root logger; categories can be
// switched off individually from the logging section of the config file.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot   Category = "boot"   // CLI startup and config loading
	CategoryAPI    Category = "api"    // CloudManager HTTP calls
	CategoryCompat Category = "compat" // Compatibility negotiation
	CategoryStats  Category = "stats"  // DLOID aggregation
	CategoryStore  Category = "store"  // Profile cache
	CategorySmoke  Category = "smoke"  // Endpoint smoke tests
	CategoryAudit  Category = "audit"  // Mutating call audit trail
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string
	Format     string // json or text
	File       string
	Categories map[string]bool
	Verbose    bool
}

var (
	root       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*zap.Logger)
	mu         sync.RWMutex
)

// Initialize builds the root logger. It should be called once at startup;
// until then every category logs to a no-op logger.
func Initialize(opts Options) (*zap.Logger, error) {
	l, err := build(opts)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	root = l
	categories = opts.Categories
	loggers = make(map[Category]*zap.Logger)
	mu.Unlock()

	Get(CategoryBoot).Debug("Logging initialized",
		zap.String("level", opts.Level),
		zap.String("format", opts.Format),
		zap.Int("category_filters", len(opts.Categories)))
	return l, nil
}

// Use installs an already built logger as root, e.g. zaptest in tests.
func Use(l *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	categories = cats
	loggers = make(map[Category]*zap.Logger)
}

func build(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(opts.Format, "text") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		lvl := opts.Level
		if lvl == "warning" {
			lvl = "warn"
		}
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories missing from the filter are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) the logger for a category. Disabled categories get
// a no-op logger.
func Get(category Category) *zap.Logger {
	if !IsCategoryEnabled(category) {
		return zap.NewNop()
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category))
	loggers[category] = l
	return l
}

// Sync flushes the root logger.
func Sync() {
	mu.RLock()
	l := root
	mu.RUnlock()
	_ = l.Sync()
}
