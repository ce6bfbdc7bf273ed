package config

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(nil, io.Discard)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	sc := cfg.StateConfig()
	require.Equal(t, 3, sc.Blocks)
	require.Equal(t, 4, sc.Difficulty)
	require.Equal(t, 7, sc.MaxDifficulty)
	require.Equal(t, "0x0000->0x0000", sc.Genesis.To)
}

func TestParseFlags(t *testing.T) {
	cfg, err := parse([]string{
		"-http.listen", "0.0.0.0:9000",
		"-chain.blocks", "5",
		"-chain.difficulty", "2",
		"-chain.hash", "BLAKE3",
		"-journal.backend", "badger",
		"-limits.minesPerSecond", "0.5",
		"-http.readTimeout", "3s",
		"-log.format", "text",
	}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.HTTP.ListenAddr)
	require.Equal(t, 5, cfg.Chain.Blocks)
	require.Equal(t, 2, cfg.Chain.Difficulty)
	require.Equal(t, "blake3", cfg.Chain.Hash)
	require.Equal(t, "badger", cfg.Journal.Backend)
	require.Equal(t, 0.5, cfg.Limits.MinesPerSecond)
	require.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("CHAINSIM_CHAIN_DIFFICULTY", "6")
	t.Setenv("CHAINSIM_LOG_LEVEL", "debug")
	t.Setenv("CHAINSIM_CHAIN_BLOCKS", "not-a-number")

	cfg, err := parse(nil, io.Discard)
	require.NoError(t, err)
	require.Equal(t, 6, cfg.Chain.Difficulty)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 3, cfg.Chain.Blocks)

	// Flags win over the environment.
	cfg, err = parse([]string{"-chain.difficulty", "1"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Chain.Difficulty)
}

func TestParseInvalid(t *testing.T) {
	cases := map[string][]string{
		"difficulty above max": {"-chain.difficulty", "8"},
		"difficulty zero":      {"-chain.difficulty", "0"},
		"max too large":        {"-chain.maxDifficulty", "65"},
		"no blocks":            {"-chain.blocks", "0"},
		"unknown hash":         {"-chain.hash", "md5"},
		"unknown journal":      {"-journal.backend", "bolt"},
		"bad log level":        {"-log.level", "loud"},
		"bad log format":       {"-log.format", "xml"},
		"empty listen":         {"-http.listen", " "},
		"zero mine rate":       {"-limits.minesPerSecond", "0"},
		"bad genesis amount":   {"-chain.genesisAmount", "NaN"},
		"unknown flag":         {"-nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parse(args, io.Discard)
			require.Error(t, err)
		})
	}
}
