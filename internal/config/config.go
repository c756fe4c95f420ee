package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/ballistics/internal/core/observability/log"
	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration. Every section can be given in
// YAML or JSON; missing sections keep their defaults.
type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Solver   SolverConfig  `json:"solver" yaml:"solver"`
	Scatter  ScatterConfig `json:"scatter" yaml:"scatter"`
	Cache    CacheConfig   `json:"cache" yaml:"cache"`
	Batch    BatchConfig   `json:"batch" yaml:"batch"`
	Server   ServerConfig  `json:"server" yaml:"server"`
}

type SolverConfig struct {
	AbsoluteTolerance float64 `json:"absolute_tolerance" yaml:"absolute_tolerance"`
	RelativeTolerance float64 `json:"relative_tolerance" yaml:"relative_tolerance"`
}

// Tolerance converts the section into the shared near-zero policy.
func (c SolverConfig) Tolerance() physics.Tolerance {
	return physics.Tolerance{Absolute: c.AbsoluteTolerance, Relative: c.RelativeTolerance}.OrDefault()
}

type ScatterConfig struct {
	// Seed 0 seeds from the clock.
	Seed        uint64 `json:"seed" yaml:"seed"`
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`
}

// EffectiveSeed resolves a zero seed to a time based one.
func (c ScatterConfig) EffectiveSeed() uint64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return uint64(time.Now().UnixNano())
}

type CacheConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	Shards           int  `json:"shards" yaml:"shards"`
	CapacityPerShard int  `json:"capacity_per_shard" yaml:"capacity_per_shard"`
}

type BatchConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

type ServerConfig struct {
	ListenAddr     string        `json:"listen_addr" yaml:"listen_addr"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`
	MaxMessageSize int64         `json:"max_message_size" yaml:"max_message_size"`
	MaxBatchSize   int           `json:"max_batch_size" yaml:"max_batch_size"`

	// QUICAddr enables the QUIC listener when set.
	QUICAddr string `json:"quic_addr" yaml:"quic_addr"`
	// Without a certificate pair the QUIC listener uses a generated self-signed one.
	TLSCertFile string `json:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file" yaml:"tls_key_file"`
}

// Default returns a ready to use configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Solver: SolverConfig{
			AbsoluteTolerance: physics.DefaultTolerance.Absolute,
			RelativeTolerance: physics.DefaultTolerance.Relative,
		},
		Scatter: ScatterConfig{
			MaxAttempts: 64,
		},
		Cache: CacheConfig{
			Enabled:          true,
			Shards:           16,
			CapacityPerShard: 1024,
		},
		Batch: BatchConfig{
			Workers: 8,
		},
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:8080",
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 1024 * 1024, // 1MB
			MaxBatchSize:   1024,
		},
	}
}

// Level parses LogLevel. Validate guarantees it succeeds.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.LevelInfo
	}
	return level
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Solver.AbsoluteTolerance < 0 || c.Solver.RelativeTolerance < 0 {
		return fmt.Errorf("%w: solver tolerances must not be negative", ErrInvalidConfig)
	}

	if c.Scatter.MaxAttempts <= 0 {
		return fmt.Errorf("%w: scatter max_attempts must be positive", ErrInvalidConfig)
	}

	if c.Cache.Enabled && (c.Cache.Shards <= 0 || c.Cache.CapacityPerShard <= 0) {
		return fmt.Errorf("%w: cache shards and capacity_per_shard must be positive", ErrInvalidConfig)
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("%w: batch workers must be positive", ErrInvalidConfig)
	}

	if _, _, err := net.SplitHostPort(c.Server.ListenAddr); err != nil {
		return fmt.Errorf("%w: server listen_addr: %v", ErrInvalidConfig, err)
	}

	if c.Server.MaxMessageSize <= 0 || c.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: server message and batch limits must be positive", ErrInvalidConfig)
	}

	if c.Server.QUICAddr != "" {
		if _, _, err := net.SplitHostPort(c.Server.QUICAddr); err != nil {
			return fmt.Errorf("%w: server quic_addr: %v", ErrInvalidConfig, err)
		}
	}

	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("%w: server tls_cert_file and tls_key_file must be set together", ErrInvalidConfig)
	}

	return nil
}

// LoadYAML loads config from a YAML reader on top of the defaults.
func LoadYAML(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, pkgerrors.Wrap(err, "failed to decode yaml config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadJSON loads config from a JSON reader on top of the defaults.
func LoadJSON(r io.Reader) (*Config, error) {
	c := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, pkgerrors.Wrap(err, "failed to decode json config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile picks the decoder from the file extension; anything other than
// .json is read as YAML.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open config %s", path)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(f)
	}
	return LoadYAML(f)
}
