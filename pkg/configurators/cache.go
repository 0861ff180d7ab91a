package configurators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// cacheUnit tunes the cache service's memory cap and eviction policy. The
// enabled state is captured explicitly at construction; the unit never
// discovers it lazily from target state mid-run.
type cacheUnit struct {
	deps    Deps
	enabled bool
}

func newCacheUnit(deps Deps, enabled bool) *cacheUnit {
	return &cacheUnit{deps: deps, enabled: enabled}
}

func (u *cacheUnit) Name() string     { return "cache-tuning" }
func (u *cacheUnit) Requires() string { return osmap.CapCache }

func (u *cacheUnit) Configure(ctx context.Context) error {
	if !u.enabled {
		return nil
	}

	cache := u.deps.App.Cache
	maxMemoryMB := cache.MaxMemoryMB
	if maxMemoryMB <= 0 {
		maxMemoryMB = 128
	}

	// CONFIG SET + REWRITE is idempotent: setting the same values twice
	// converges to the same redis.conf.
	var b strings.Builder
	fmt.Fprintf(&b, "redis-cli config set maxmemory %dmb\n", maxMemoryMB)
	fmt.Fprintf(&b, "redis-cli config set maxmemory-policy %s\n", cache.EvictionPolicy)
	b.WriteString("redis-cli config rewrite || true\n")

	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    b.String(),
		Timeout: time.Minute,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("cache tuning exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}
