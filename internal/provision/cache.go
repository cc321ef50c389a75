package provision

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PlatformCacheProvisioner deploys a dedicated cache workload into the
// tenant's namespace through the platform controller and verifies it
// answers before handing the address to the orchestrator. It implements
// CacheProvisioner.
type PlatformCacheProvisioner struct {
	platform *PlatformClient
}

func NewPlatformCacheProvisioner(platform *PlatformClient) *PlatformCacheProvisioner {
	return &PlatformCacheProvisioner{platform: platform}
}

func (p *PlatformCacheProvisioner) Provision(ctx context.Context, namespace string) (string, error) {
	addr, err := p.platform.DeployCache(ctx, namespace)
	if err != nil {
		return "", err
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return "", fmt.Errorf("cache at %s not answering: %w", addr, err)
	}
	return addr, nil
}
