package loadcache

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultStorePrefix           = "loadcache"
	defaultStoreTTL              = 5 * time.Minute
	defaultMemoryCleanupInterval = 10 * time.Minute
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "loadcache-file")
}

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	Driver Driver

	// DefaultTTL is used when a call provides ttl <= 0.
	DefaultTTL time.Duration

	// MemoryCleanupInterval controls in-process store eviction sweeps.
	MemoryCleanupInterval time.Duration

	// Prefix namespaces keys on shared backends (e.g. redis, sql).
	Prefix string

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue

	// NATSBucketTTL indicates the bucket enforces expiry itself, so values are
	// stored raw instead of wrapped in an expiry envelope.
	NATSBucketTTL bool

	// SQLDriverName and SQLDSN are required when DriverSQL is used.
	SQLDriverName string
	SQLDSN        string
	// SQLTable defaults to "loadcache_entries".
	SQLTable string

	// DynamoClient is used when DriverDynamo is set; when nil a client is built
	// from DynamoRegion/DynamoEndpoint.
	DynamoClient   DynamoAPI
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string

	// FileDir controls where the file driver keeps entries.
	FileDir string
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultStoreTTL
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.Prefix == "" {
		c.Prefix = defaultStorePrefix
	}
	if c.SQLTable == "" {
		c.SQLTable = "loadcache_entries"
	}
	if c.DynamoTable == "" {
		c.DynamoTable = "loadcache_entries"
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = "us-east-1"
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	return c
}
