// Package heartbeat persists bot liveness rows. The newest row carries the
// durable paused-pairs snapshot that executor cycles rebuild from.
package heartbeat

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"scalpbot/internal/models"
	"scalpbot/internal/repository"
)

const DefaultStaleThreshold = 30 * time.Second

type Snapshot struct {
	Mode        string
	Version     string
	UptimeSec   int64
	LastCycleAt time.Time
	PausedPairs map[string]struct{}
	Meta        map[string]any
}

type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *Service) Write(ctx context.Context, snap Snapshot) error {
	pairs := make([]string, 0, len(snap.PausedPairs))
	for pair := range snap.PausedPairs {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	pausedJSON, _ := json.Marshal(pairs)

	item := &models.BotStatus{
		TS:          time.Now().UTC(),
		Mode:        snap.Mode,
		Version:     snap.Version,
		UptimeSec:   snap.UptimeSec,
		PausedPairs: datatypes.JSON(pausedJSON),
	}
	if !snap.LastCycleAt.IsZero() {
		t := snap.LastCycleAt
		item.LastCycleAt = &t
	}
	if snap.Meta != nil {
		if raw, err := json.Marshal(snap.Meta); err == nil {
			item.Meta = datatypes.JSON(raw)
		}
	}
	return s.Repo.InsertBotStatus(ctx, item)
}

func (s *Service) Latest(ctx context.Context) (*models.BotStatus, error) {
	return s.Repo.LatestBotStatus(ctx)
}

// PausedPairs rebuilds the paused set from the last durable snapshot. A
// missing or unreadable snapshot yields an empty set: nothing paused.
func (s *Service) PausedPairs(ctx context.Context) (map[string]struct{}, error) {
	latest, err := s.Repo.LatestBotStatus(ctx)
	if err != nil {
		return nil, err
	}
	paused := map[string]struct{}{}
	if latest == nil || len(latest.PausedPairs) == 0 {
		return paused, nil
	}
	var pairs []string
	if err := json.Unmarshal(latest.PausedPairs, &pairs); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("unreadable paused-pairs snapshot", zap.Error(err))
		}
		return paused, nil
	}
	for _, pair := range pairs {
		paused[pair] = struct{}{}
	}
	return paused, nil
}

// IsStale reports whether a heartbeat is too old to trust. A nil timestamp is
// stale by definition.
func IsStale(last *time.Time, now time.Time, threshold time.Duration) bool {
	if last == nil || last.IsZero() {
		return true
	}
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return now.Sub(*last) > threshold
}
