package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/metrics"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/transport"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	snapshotKeyPrefix  = "pipeline:metrics:snapshot:"
	defaultSnapshotTTL = 15 * time.Minute
	snapshotFanOut     = 4
)

// SnapshotCache stores pre-computed metrics in Redis. Entries are advisory
// and expire after the TTL.
type SnapshotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewSnapshotCache(client redis.UniversalClient, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(tenantID, pipelineID uuid.UUID) string {
	return snapshotKeyPrefix + tenantID.String() + ":" + pipelineID.String()
}

func (c *SnapshotCache) Put(ctx context.Context, tenantID uuid.UUID, snapshot transport.MetricsResponse) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(tenantID, snapshot.PipelineID), data, c.ttl).Err()
}

// Get returns the cached snapshot. ok is false on a miss.
func (c *SnapshotCache) Get(ctx context.Context, tenantID, pipelineID uuid.UUID) (snapshot transport.MetricsResponse, ok bool, err error) {
	data, err := c.client.Get(ctx, snapshotKey(tenantID, pipelineID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return transport.MetricsResponse{}, false, nil
	}
	if err != nil {
		return transport.MetricsResponse{}, false, err
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return transport.MetricsResponse{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, true, nil
}

// SnapshotSource is the read slice the snapshotter needs.
type SnapshotSource interface {
	repository.PipelineDirectory
	metrics.Repository
}

// Snapshotter computes metrics reports and writes them to the cache.
type Snapshotter struct {
	source SnapshotSource
	agg    *metrics.Aggregator
	cache  *SnapshotCache
	log    *logger.Logger
}

func NewSnapshotter(source SnapshotSource, cache *SnapshotCache, log *logger.Logger) *Snapshotter {
	return &Snapshotter{source: source, agg: metrics.New(source), cache: cache, log: log}
}

// Refresh recomputes one pipeline.
func (s *Snapshotter) Refresh(ctx context.Context, tenantID, pipelineID uuid.UUID) error {
	report, err := s.agg.Compute(ctx, tenantID, pipelineID, metrics.Window{})
	if err != nil {
		return err
	}
	return s.cache.Put(ctx, tenantID, report.Response())
}

// RefreshAll recomputes every pipeline with bounded parallelism. The first
// failure cancels the remaining work.
func (s *Snapshotter) RefreshAll(ctx context.Context) error {
	pipelines, err := s.source.ListAllPipelines(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotFanOut)
	for _, p := range pipelines {
		g.Go(func() error {
			if err := s.Refresh(gctx, p.TenantID, p.ID); err != nil {
				return fmt.Errorf("snapshot pipeline %s: %w", p.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("metrics snapshot refresh failed", "error", err)
		return err
	}

	s.log.Info("metrics snapshots refreshed", "pipelines", len(pipelines), "took", time.Since(start))
	return nil
}
