package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/museumbook/internal/bulk"
	appconfig "github.com/wolfman30/museumbook/internal/config"
	"github.com/wolfman30/museumbook/internal/ingest"
	"github.com/wolfman30/museumbook/internal/listings"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/internal/observability/metrics"
	"github.com/wolfman30/museumbook/internal/release"
	"github.com/wolfman30/museumbook/internal/session"
	"github.com/wolfman30/museumbook/pkg/logging"
)

// cacheDialTimeout bounds every Redis round trip so an unreachable listing
// cache never stalls a command. The cache is optional.
const cacheDialTimeout = 2 * time.Second

// listingCacheOptions maps the config onto go-redis options.
func listingCacheOptions(cfg *appconfig.Config) *redis.Options {
	opts := &redis.Options{
		Addr:         strings.TrimSpace(cfg.RedisAddr),
		Password:     cfg.RedisPassword,
		DialTimeout:  cacheDialTimeout,
		ReadTimeout:  cacheDialTimeout,
		WriteTimeout: cacheDialTimeout,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// BuildRedisClient returns the listing cache client, or nil when no address
// is configured. With verify set, an unreachable server also yields nil and
// listings fall back to the API.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := listingCacheOptions(cfg)
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, cacheDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("listing cache unreachable, reading appointments from the api", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildListingCache returns the appointment listing cache when Redis is available.
func BuildListingCache(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) *listings.Cache {
	if redisClient == nil {
		return nil
	}
	return listings.NewCache(redisClient, cfg.ListingCacheTTL, logger)
}

// BuildParser applies the configured ingest defaults.
func BuildParser(cfg *appconfig.Config) *ingest.Parser {
	return ingest.NewParser().
		WithLeadDays(cfg.BookingLeadDays).
		WithDefaultSlot(cfg.DefaultTimeSlot)
}

// BuildSubmitter wires the bulk submitter. A non-nil cache is invalidated
// after every batch that created appointments.
func BuildSubmitter(cfg *appconfig.Config, creator bulk.Creator, cache *listings.Cache, m *metrics.BulkMetrics, logger *logging.Logger) *bulk.Submitter {
	sub := bulk.NewSubmitter(creator, logger).
		WithConcurrency(cfg.BulkConcurrency).
		WithStagger(cfg.BulkStagger).
		WithMaxAttempts(cfg.BulkMaxAttempts).
		WithBaseDelay(cfg.BulkRetryBaseDelay).
		WithMetrics(m)
	if cache != nil {
		sub.OnComplete(cache.AfterBatch)
	}
	return sub
}

// Runtime is the shared wiring behind every command.
type Runtime struct {
	Config    *appconfig.Config
	Logger    *logging.Logger
	Session   *session.Session
	API       *museumapi.Client
	Redis     *redis.Client
	Cache     *listings.Cache
	Parser    *ingest.Parser
	Submitter *bulk.Submitter
	Window    *release.Window
	Metrics   *metrics.BulkMetrics
}

// NewRuntime builds the session, API client, optional listing cache and bulk
// submitter from cfg. reg may be nil to skip metrics registration.
func NewRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	window, err := release.New(cfg.ReleaseTime, cfg.ReleaseWindow, cfg.ReleaseTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	sess := session.New(session.NewFileStore(cfg.TokenFile), logger)
	api := museumapi.NewClient(cfg.APIBaseURL, sess, logger).WithTimeout(cfg.APITimeout)
	sess.WithAuthenticator(api)

	var m *metrics.BulkMetrics
	if reg != nil {
		m = metrics.NewBulkMetrics(reg)
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	cache := BuildListingCache(redisClient, cfg, logger)

	rt := &Runtime{
		Config:    cfg,
		Logger:    logger,
		Session:   sess,
		API:       api,
		Redis:     redisClient,
		Cache:     cache,
		Parser:    BuildParser(cfg),
		Submitter: BuildSubmitter(cfg, api, cache, m, logger),
		Window:    window,
		Metrics:   m,
	}
	return rt, nil
}

// Lister returns an appointment lister scoped to the signed-in account.
func (rt *Runtime) Lister() *listings.Lister {
	owner := ""
	if u := rt.Session.User(); u != nil {
		owner = u.Identifier()
	}
	return listings.NewLister(rt.API, rt.Cache, rt.Logger).WithOwner(owner)
}

func (rt *Runtime) Close() error {
	if rt.Redis != nil {
		return rt.Redis.Close()
	}
	return nil
}
