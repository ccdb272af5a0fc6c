// Package rpcconfig loads the tunables a Stub, Skeleton, or StubPool needs
// at construction time from a TOML file, the way cmd/dtnd/configuration.go
// decodes its core/listen/peer blocks with toml.DecodeFile — generalized
// here to a single [pool] block instead of a daemon's full config tree,
// since this module's config surface is much smaller.
package rpcconfig

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the decoded shape of the TOML file: one [pool] table holding
// every duration-valued tunable as microseconds, matching the original
// C++ source's microsecond-typed fields (see original_source/rpc/rpc.h).
type Config struct {
	Pool PoolConfig `toml:"pool"`
}

// PoolConfig holds the Skeleton worker-pool size (NewSkeleton's poolSize)
// and the three durations NewStubPool takes.
type PoolConfig struct {
	Size             int   `toml:"pool_size"`
	ConnectTimeoutUs int64 `toml:"connect_timeout_us"`
	CallTimeoutUs    int64 `toml:"call_timeout_us"`
	ExpirationUs     int64 `toml:"expiration_us"`
}

// ConnectTimeout returns the configured connect timeout as a time.Duration.
func (c PoolConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutUs) * time.Microsecond
}

// CallTimeout returns the configured per-call timeout as a time.Duration.
func (c PoolConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutUs) * time.Microsecond
}

// Expiration returns the configured idle-eviction window as a time.Duration.
func (c PoolConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationUs) * time.Microsecond
}

// Load decodes the TOML file at path into a Config.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("rpcconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in tunables used when no config file is given:
// a 128-worker Skeleton pool, a 5s connect timeout, a 30s call timeout, and a 60s
// idle-eviction window.
func Default() Config {
	return Config{Pool: PoolConfig{
		Size:             128,
		ConnectTimeoutUs: 5_000_000,
		CallTimeoutUs:    30_000_000,
		ExpirationUs:     60_000_000,
	}}
}
