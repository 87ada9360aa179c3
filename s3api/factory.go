package s3api

import (
	"context"
	"sync"

	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/vault"
)

// ProfileSource is the vault capability the factory needs to
// materialize clients
type ProfileSource interface {
	GetConnection(id int64) (*vault.Connection, error)
	DecryptSecret(conn *vault.Connection) (string, error)
	TouchLastUsed(id int64) error
}

type clientKey struct {
	connectionID int64
	region       string
}

type regionKey struct {
	connectionID int64
	bucket       string
}

// Factory materializes API clients from connection profiles. Clients
// are cached per (connection, region) and regions per (connection,
// bucket); resolution happens outside the lock with a double-checked
// insert.
type Factory struct {
	profiles ProfileSource
	logger   *log.Logger

	clients map[clientKey]API
	regions map[regionKey]string
	mu      sync.Mutex

	// build is swappable for tests
	build func(cfg *Config, secretKey string, logger *log.Logger) (API, error)
}

// NewFactory creates a client factory over the given profile source
func NewFactory(profiles ProfileSource, logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New("s3-factory")
	}
	return &Factory{
		profiles: profiles,
		logger:   logger,
		clients:  make(map[clientKey]API),
		regions:  make(map[regionKey]string),
		build: func(cfg *Config, secretKey string, logger *log.Logger) (API, error) {
			return NewClient(cfg, secretKey, logger)
		},
	}
}

// GetClient returns a client bound to the profile's endpoint and
// credentials. When the profile has auto-detect enabled and a bucket is
// known, the bucket region is resolved once and memoized.
func (f *Factory) GetClient(ctx context.Context, connectionID int64, bucket string) (API, *vault.Connection, error) {
	conn, err := f.profiles.GetConnection(connectionID)
	if err != nil {
		return nil, nil, err
	}

	region := conn.Region
	if conn.AutoDetectRegion && bucket != "" {
		region, err = f.resolveRegion(ctx, conn, bucket)
		if err != nil {
			return nil, nil, err
		}
	}
	if region == "" {
		region = DefaultRegion
	}

	client, err := f.clientForRegion(conn, region)
	if err != nil {
		return nil, nil, err
	}

	if err = f.profiles.TouchLastUsed(connectionID); err != nil {
		f.logger.Error(err, "cannot update profile usage", log.KV{"connection_id": connectionID})
	}
	return client, conn, nil
}

func (f *Factory) clientForRegion(conn *vault.Connection, region string) (API, error) {
	key := clientKey{connectionID: conn.ID, region: region}

	f.mu.Lock()
	if client, ok := f.clients[key]; ok {
		f.mu.Unlock()
		return client, nil
	}
	f.mu.Unlock()

	client, err := f.materialize(conn, region)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.clients[key]; ok {
		return existing, nil
	}
	f.clients[key] = client
	return client, nil
}

func (f *Factory) materialize(conn *vault.Connection, region string) (API, error) {
	secret, err := f.profiles.DecryptSecret(conn)
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()
	cfg.Endpoint = conn.Endpoint
	cfg.Region = region
	cfg.AccessKeyID = conn.AccessKeyID
	return f.build(cfg, secret, f.logger)
}

// resolveRegion returns the cached region for (connection, bucket) or
// resolves it via GetBucketLocation using a default-region probe client
func (f *Factory) resolveRegion(ctx context.Context, conn *vault.Connection, bucket string) (string, error) {
	key := regionKey{connectionID: conn.ID, bucket: bucket}

	f.mu.Lock()
	if region, ok := f.regions[key]; ok {
		f.mu.Unlock()
		return region, nil
	}
	f.mu.Unlock()

	probe, err := f.materialize(conn, DefaultRegion)
	if err != nil {
		return "", err
	}
	region, err := probe.GetBucketLocation(ctx, bucket)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.regions[key]; ok {
		return existing, nil
	}
	f.regions[key] = region
	f.logger.Info("bucket region resolved", log.KV{
		"connection_id": conn.ID,
		"bucket":        bucket,
		"region":        region,
	})
	return region, nil
}

// Evict drops cached clients and regions of a connection; called on
// profile save and delete
func (f *Factory) Evict(connectionID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.clients {
		if key.connectionID == connectionID {
			delete(f.clients, key)
		}
	}
	for key := range f.regions {
		if key.connectionID == connectionID {
			delete(f.regions, key)
		}
	}
}

// InvalidateRegions clears the region cache of a connection
func (f *Factory) InvalidateRegions(connectionID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.regions {
		if key.connectionID == connectionID {
			delete(f.regions, key)
		}
	}
}
