package job

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/0x13a/jobapply/internal/apperror"
)

const cacheKeyPrefix = "job:summary:"

type summaryLoader interface {
	Summary(ctx context.Context, id string) (Summary, error)
}

// Cache keeps job summaries in memory for the intake path, which looks a job up
// on every submission. Misses are never cached.
type Cache struct {
	loader summaryLoader
	bc     *bigcache.BigCache
	log    zerolog.Logger
}

func NewCache(ctx context.Context, loader summaryLoader, ttl time.Duration, log zerolog.Logger) (*Cache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10000
	cfg.MaxEntrySize = 256
	bc, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialise job cache")
	}
	return &Cache{loader: loader, bc: bc, log: log}, nil
}

func (c *Cache) Summary(ctx context.Context, id string) (Summary, error) {
	var s Summary
	if cached, err := c.bc.Get(cacheKeyPrefix + id); err == nil {
		if err := gob.NewDecoder(bytes.NewReader(cached)).Decode(&s); err == nil {
			return s, nil
		}
		c.log.Warn().Str("job_id", id).Msg("unable to decode cached job summary")
	}
	s, err := c.loader.Summary(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		c.log.Warn().Err(err).Str("job_id", id).Msg("unable to encode job summary")
		return s, nil
	}
	if err := c.bc.Set(cacheKeyPrefix+id, buf.Bytes()); err != nil {
		c.log.Warn().Err(err).Str("job_id", id).Msg("unable to cache job summary")
	}
	return s, nil
}

// Exists reports whether the job is known. Only not found maps to false, any
// other lookup failure is returned.
func (c *Cache) Exists(ctx context.Context, id string) (bool, error) {
	_, err := c.Summary(ctx, id)
	if apperror.IsKind(err, apperror.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Invalidate(id string) {
	if err := c.bc.Delete(cacheKeyPrefix + id); err != nil && err != bigcache.ErrEntryNotFound {
		c.log.Warn().Err(err).Str("job_id", id).Msg("unable to invalidate job summary")
	}
}

func (c *Cache) Close() error {
	return c.bc.Close()
}
