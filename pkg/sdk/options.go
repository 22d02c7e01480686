package indexsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver    string // "redis" or "bleve"
	addrs     []string
	password  string
	keyPrefix string
	bleveDir  string
	backend   Backend

	lockDir   string
	pageSize  int
	cacheSize int
	source    Pinger

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithRedis indexes into Redis with the search module.
func WithRedis(addrs []string, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = addrs
		c.password = password
	})
}

// WithKeyPrefix namespaces every Redis key and index name.
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithBleve indexes into embedded bleve indexes under dir.
// An empty dir keeps the indexes in memory.
func WithBleve(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "bleve"
		c.bleveDir = dir
	})
}

// WithBackend uses an already connected backend. The Client closes it.
func WithBackend(b Backend) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = b
	})
}

// WithLockDir enables cross-process reindex locking with lock files under dir.
func WithLockDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.lockDir = dir
	})
}

// WithPaging sets the backend fetch window and the per-result-set rank cache size.
func WithPaging(pageSize, cacheSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.pageSize = pageSize
		c.cacheSize = cacheSize
	})
}

// WithSourceCheck adds the system of record to Health next to the search backend.
func WithSourceCheck(p Pinger) Option {
	return optionFunc(func(c *clientConfig) {
		c.source = p
	})
}

// WithLogger enables structured logging. Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
