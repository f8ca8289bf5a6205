package depot

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/TheBitDrifter/table"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds global configuration for worlds, queries and stages.
var Config config = config{
	logger:             zap.NewNop(),
	workers:            runtime.GOMAXPROCS(0),
	batchSize:          defaultBatchSize,
	checkTickThreshold: defaultCheckTickThreshold,
}

const (
	defaultBatchSize          = 1024
	defaultCheckTickThreshold = 1 << 30
)

type config struct {
	mu                 sync.RWMutex
	logger             *zap.Logger
	tableEvents        table.TableEvents
	workers            int
	batchSize          int
	checkTickThreshold uint32
}

// SetTableEvents configures the table event callbacks of archetypes created from
// now on. An error from a before-callback aborts Spawn or Despawn. Migrations create
// rows in the destination table as well, and must not be refused.
func (c *config) SetTableEvents(te table.TableEvents) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableEvents = te
}

func (c *config) TableEvents() table.TableEvents {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableEvents
}

// SetLogger sets the logger new worlds derive theirs from. A nil logger disables logging.
func (c *config) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

func (c *config) Logger() *zap.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// SetWorkers bounds the goroutines used by parallel stages and ParForEach.
func (c *config) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers = n
}

func (c *config) Workers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workers
}

// SetBatchSize sets the default ParForEach batch size.
func (c *config) SetBatchSize(n int) {
	if n < 1 {
		n = defaultBatchSize
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchSize = n
}

func (c *config) BatchSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.batchSize
}

// SetCheckTickThreshold sets how many ticks pass between stage-driven tick clamping.
func (c *config) SetCheckTickThreshold(n uint32) {
	if n == 0 || n > MaxChangeAge {
		n = defaultCheckTickThreshold
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkTickThreshold = n
}

func (c *config) CheckTickThreshold() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkTickThreshold
}

// Settings is the YAML form of Config.
type Settings struct {
	Workers            int    `yaml:"workers"`
	BatchSize          int    `yaml:"batch_size"`
	CheckTickThreshold uint32 `yaml:"check_tick_threshold"`
	LogLevel           string `yaml:"log_level"`
	LogEncoding        string `yaml:"log_encoding"`
}

// LoadSettings decodes settings from YAML. Unknown fields are rejected.
func LoadSettings(r io.Reader) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

// Apply validates s and applies every non-zero field. A log level replaces the
// logger with a zap logger writing to stderr.
func (c *config) Apply(s Settings) error {
	if s.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", s.Workers)
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("invalid batch_size: %d", s.BatchSize)
	}
	if s.CheckTickThreshold > MaxChangeAge {
		return fmt.Errorf("check_tick_threshold %d exceeds %d", s.CheckTickThreshold, MaxChangeAge)
	}
	var logger *zap.Logger
	if s.LogLevel != "" {
		built, err := buildLogger(s.LogLevel, s.LogEncoding)
		if err != nil {
			return err
		}
		logger = built
	}
	if s.Workers > 0 {
		c.SetWorkers(s.Workers)
	}
	if s.BatchSize > 0 {
		c.SetBatchSize(s.BatchSize)
	}
	if s.CheckTickThreshold > 0 {
		c.SetCheckTickThreshold(s.CheckTickThreshold)
	}
	if logger != nil {
		c.SetLogger(logger)
	}
	return nil
}

func buildLogger(level, encoding string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}
	if encoding == "" {
		encoding = "json"
	}
	if encoding != "json" && encoding != "console" {
		return nil, fmt.Errorf("invalid log_encoding: %s", encoding)
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}
	return cfg.Build()
}
