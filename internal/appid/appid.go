// Package appid holds the riftproxy application identity.
package appid

import (
	"context"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
)

const (
	Vendor      = "riftproxy"
	BinaryName  = "riftproxy"
	EnvPrefix   = "RIFTPROXY_"
	ConfigName  = "riftproxy"
	Description = "Rate-limit aware caching proxy for the League of Legends API"
)

var (
	once     sync.Once
	identity *appidentity.Identity
)

// Get returns the process-wide application identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	once.Do(func() {
		identity = &appidentity.Identity{
			Vendor:      Vendor,
			BinaryName:  BinaryName,
			EnvPrefix:   EnvPrefix,
			ConfigName:  ConfigName,
			Description: Description,
		}
	})
	return identity, nil
}
