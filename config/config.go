package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Artfain/chainsim/core"
)

type Config struct {
	HTTP    HTTPConfig
	Chain   ChainConfig
	Journal JournalConfig
	Limits  LimitsConfig
	Log     LogConfig
}

type HTTPConfig struct {
	ListenAddr   string
	StaticDir    string // served at / when set
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ChainConfig struct {
	Blocks        int
	Difficulty    int
	MaxDifficulty int
	Hash          string // sha256|sha3-256|blake3
	GenesisAmount float64
	GenesisTo     string
}

type JournalConfig struct {
	Backend string // leveldb|badger
}

type LimitsConfig struct {
	HandshakesPerMinute int
	HandshakeBurst      int
	MinesPerSecond      float64
	MineBurst           int
}

type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			ListenAddr:   "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Chain: ChainConfig{
			Blocks:        3,
			Difficulty:    4,
			MaxDifficulty: core.DefaultMaxDifficulty,
			Hash:          core.HashSHA256,
			GenesisAmount: 0,
			GenesisTo:     "0x0000->0x0000",
		},
		Journal: JournalConfig{
			Backend: "leveldb",
		},
		Limits: LimitsConfig{
			HandshakesPerMinute: 100,
			HandshakeBurst:      100,
			MinesPerSecond:      2,
			MineBurst:           5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// StateConfig converts the chain section for core.NewState.
func (c Config) StateConfig() core.StateConfig {
	return core.StateConfig{
		Blocks:        c.Chain.Blocks,
		Genesis:       core.Payload{Amount: c.Chain.GenesisAmount, To: c.Chain.GenesisTo},
		Difficulty:    c.Chain.Difficulty,
		MaxDifficulty: c.Chain.MaxDifficulty,
		Algorithm:     c.Chain.Hash,
	}
}

// Parse reads flags from args, falling back to CHAINSIM_* environment
// variables and then to Default.
func Parse(args []string) (Config, error) {
	return parse(args, os.Stdout)
}

func parse(args []string, out io.Writer) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("chainsim", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		listen  = fs.String("http.listen", envOr("CHAINSIM_HTTP_LISTEN", cfg.HTTP.ListenAddr), "HTTP listen address (ip:port)")
		static  = fs.String("http.static", envOr("CHAINSIM_HTTP_STATIC", cfg.HTTP.StaticDir), "Directory of static client files served at / (optional)")
		readTO  = fs.Duration("http.readTimeout", envOrDuration("CHAINSIM_HTTP_READ_TIMEOUT", cfg.HTTP.ReadTimeout), "HTTP read timeout")
		writeTO = fs.Duration("http.writeTimeout", envOrDuration("CHAINSIM_HTTP_WRITE_TIMEOUT", cfg.HTTP.WriteTimeout), "HTTP write timeout")
		idleTO  = fs.Duration("http.idleTimeout", envOrDuration("CHAINSIM_HTTP_IDLE_TIMEOUT", cfg.HTTP.IdleTimeout), "HTTP idle timeout")

		blocks        = fs.Int("chain.blocks", envOrInt("CHAINSIM_CHAIN_BLOCKS", cfg.Chain.Blocks), "Number of blocks created at initialization")
		difficulty    = fs.Int("chain.difficulty", envOrInt("CHAINSIM_CHAIN_DIFFICULTY", cfg.Chain.Difficulty), "Initial difficulty (leading hex zeros)")
		maxDifficulty = fs.Int("chain.maxDifficulty", envOrInt("CHAINSIM_CHAIN_MAX_DIFFICULTY", cfg.Chain.MaxDifficulty), "Highest difficulty a client may select")
		hash          = fs.String("chain.hash", envOr("CHAINSIM_CHAIN_HASH", cfg.Chain.Hash), "Hash algorithm: sha256|sha3-256|blake3")
		genesisAmount = fs.Float64("chain.genesisAmount", envOrFloat("CHAINSIM_CHAIN_GENESIS_AMOUNT", cfg.Chain.GenesisAmount), "Amount of the genesis payload")
		genesisTo     = fs.String("chain.genesisTo", envOr("CHAINSIM_CHAIN_GENESIS_TO", cfg.Chain.GenesisTo), "Recipient of the genesis payload")

		journal = fs.String("journal.backend", envOr("CHAINSIM_JOURNAL_BACKEND", cfg.Journal.Backend), "Mining journal backend: leveldb|badger")

		handshakes     = fs.Int("limits.handshakesPerMinute", envOrInt("CHAINSIM_LIMITS_HANDSHAKES_PER_MINUTE", cfg.Limits.HandshakesPerMinute), "Websocket handshakes allowed per minute")
		handshakeBurst = fs.Int("limits.handshakeBurst", envOrInt("CHAINSIM_LIMITS_HANDSHAKE_BURST", cfg.Limits.HandshakeBurst), "Websocket handshake burst")
		mines          = fs.Float64("limits.minesPerSecond", envOrFloat("CHAINSIM_LIMITS_MINES_PER_SECOND", cfg.Limits.MinesPerSecond), "Mine requests allowed per second per connection")
		mineBurst      = fs.Int("limits.mineBurst", envOrInt("CHAINSIM_LIMITS_MINE_BURST", cfg.Limits.MineBurst), "Mine request burst per connection")

		logLevel  = fs.String("log.level", envOr("CHAINSIM_LOG_LEVEL", cfg.Log.Level), "Log level: debug|info|warn|error")
		logFormat = fs.String("log.format", envOr("CHAINSIM_LOG_FORMAT", cfg.Log.Format), "Log format: json|text")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.HTTP.ListenAddr = strings.TrimSpace(*listen)
	cfg.HTTP.StaticDir = strings.TrimSpace(*static)
	cfg.HTTP.ReadTimeout = *readTO
	cfg.HTTP.WriteTimeout = *writeTO
	cfg.HTTP.IdleTimeout = *idleTO

	cfg.Chain.Blocks = *blocks
	cfg.Chain.Difficulty = *difficulty
	cfg.Chain.MaxDifficulty = *maxDifficulty
	cfg.Chain.Hash = strings.ToLower(strings.TrimSpace(*hash))
	cfg.Chain.GenesisAmount = *genesisAmount
	cfg.Chain.GenesisTo = *genesisTo

	cfg.Journal.Backend = strings.ToLower(strings.TrimSpace(*journal))

	cfg.Limits.HandshakesPerMinute = *handshakes
	cfg.Limits.HandshakeBurst = *handshakeBurst
	cfg.Limits.MinesPerSecond = *mines
	cfg.Limits.MineBurst = *mineBurst

	cfg.Log.Level = strings.TrimSpace(*logLevel)
	cfg.Log.Format = strings.TrimSpace(*logFormat)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.HTTP.ListenAddr == "" {
		return errors.New("http.listen must not be empty")
	}
	if cfg.Chain.Blocks < 1 || cfg.Chain.Blocks > 64 {
		return fmt.Errorf("chain.blocks out of range: %d", cfg.Chain.Blocks)
	}
	if cfg.Chain.MaxDifficulty < 1 || cfg.Chain.MaxDifficulty > core.DigestHexLen {
		return fmt.Errorf("chain.maxDifficulty out of range: %d", cfg.Chain.MaxDifficulty)
	}
	if cfg.Chain.Difficulty < 1 || cfg.Chain.Difficulty > cfg.Chain.MaxDifficulty {
		return fmt.Errorf("chain.difficulty out of range [1,%d]: %d", cfg.Chain.MaxDifficulty, cfg.Chain.Difficulty)
	}
	if _, err := core.NewHasher(cfg.Chain.Hash); err != nil {
		return fmt.Errorf("chain.hash: %w", err)
	}
	if _, err := (core.Payload{Amount: cfg.Chain.GenesisAmount, To: cfg.Chain.GenesisTo}).Canonical(); err != nil {
		return fmt.Errorf("chain.genesisAmount: %w", err)
	}

	switch cfg.Journal.Backend {
	case "leveldb", "badger":
	default:
		return fmt.Errorf("invalid journal.backend: %q", cfg.Journal.Backend)
	}

	if cfg.Limits.HandshakesPerMinute <= 0 || cfg.Limits.HandshakeBurst <= 0 {
		return errors.New("limits.handshakesPerMinute and limits.handshakeBurst must be positive")
	}
	if cfg.Limits.MinesPerSecond <= 0 || cfg.Limits.MineBurst <= 0 {
		return errors.New("limits.minesPerSecond and limits.mineBurst must be positive")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format: %q", cfg.Log.Format)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envOrInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
