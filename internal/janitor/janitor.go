// Package janitor runs periodic housekeeping: expired sessions, stale rate
// limit windows and photos no post refers to any more.
package janitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"lostfound/internal/config"
)

type Store interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) error
	PurgeRateLimits(ctx context.Context, now time.Time) error
	ReferencedPhotos(ctx context.Context) (map[string]struct{}, error)
}

type Report struct {
	OrphansRemoved int
}

type Janitor struct {
	st        Store
	uploadDir string
	interval  time.Duration
	grace     time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func New(cfg config.Config, st Store, log *zap.Logger) *Janitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{
		st:        st,
		uploadDir: cfg.Upload.Dir,
		interval:  cfg.Janitor.Interval,
		grace:     cfg.Janitor.OrphanGrace,
		log:       log.Named("janitor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.now = now
	return j
}

// Run sweeps once immediately and then every interval until ctx is done. A
// zero interval disables the loop.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			j.log.Warn("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (j *Janitor) RunOnce(ctx context.Context) (Report, error) {
	now := j.now()
	var rep Report
	if err := j.st.PurgeExpiredSessions(ctx, now); err != nil {
		return rep, err
	}
	if err := j.st.PurgeRateLimits(ctx, now); err != nil {
		return rep, err
	}
	n, err := j.removeOrphans(ctx, now)
	rep.OrphansRemoved = n
	if err != nil {
		return rep, err
	}
	if n > 0 {
		j.log.Info("removed orphaned uploads", zap.Int("count", n))
	}
	return rep, nil
}

// removeOrphans deletes upload files older than the grace period that no post
// references. The grace period covers the gap between storing a photo and
// inserting its post.
func (j *Janitor) removeOrphans(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(j.uploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	used, err := j.st.ReferencedPhotos(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := used[e.Name()]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < j.grace {
			continue
		}
		if err := os.Remove(filepath.Join(j.uploadDir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.log.Warn("remove orphan failed", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
