// Package executor drives the command state machine: sweep stale work, claim
// one command, dispatch it, record the terminal outcome. A cycle is a
// synchronous sequence of store operations; any number of workers may run the
// same cycle against the same database.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"scalpbot/internal/alert"
	"scalpbot/internal/broker"
	"scalpbot/internal/heartbeat"
	"scalpbot/internal/models"
	"scalpbot/internal/queue"
	"scalpbot/internal/repository"
)

// LiveCloseFunc closes a live position at the external broker. Injected; only
// invoked when LIVE mode is both requested and globally enabled.
type LiveCloseFunc func(ctx context.Context, pair string) (map[string]any, error)

type ReloadParamsFunc func(ctx context.Context) error

type Config struct {
	WorkerID     string
	Mode         string
	Version      string
	Pairs        []string
	StaleTimeout time.Duration
	LiveEnabled  bool
}

type Service struct {
	Queue     *queue.Service
	Broker    *broker.Paper
	Repo      repository.Repository
	Heartbeat *heartbeat.Service
	Alerts    *alert.Service
	Logger    *zap.Logger
	Config    Config

	LiveClose    LiveCloseFunc
	ReloadParams ReloadParamsFunc

	startedAt time.Time
}

type outcome struct {
	status models.CommandStatus
	result map[string]any
}

// Cycle runs one full executor pass. It never returns an error for a bad
// command — only for infrastructure failures that make the cycle itself
// impossible.
func (s *Service) Cycle(ctx context.Context) error {
	if s.startedAt.IsZero() {
		s.startedAt = time.Now().UTC()
	}

	paused, err := s.Heartbeat.PausedPairs(ctx)
	if err != nil {
		return fmt.Errorf("load paused pairs: %w", err)
	}

	timeout := s.Config.StaleTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if _, err := s.Queue.SweepStaleRunning(ctx, timeout, s.Config.WorkerID); err != nil {
		return fmt.Errorf("stale sweep: %w", err)
	}

	cmd, err := s.Queue.ClaimNextPending(ctx, s.Config.WorkerID)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if cmd != nil {
		out := s.dispatch(ctx, cmd, paused)
		result := queue.MarshalResult(out.result)
		if err := s.Queue.Finish(ctx, cmd.ID, out.status, result, s.Config.WorkerID); err != nil {
			return fmt.Errorf("finish command %d: %w", cmd.ID, err)
		}
		if s.Logger != nil {
			s.Logger.Info("command executed",
				zap.Uint64("command_id", cmd.ID),
				zap.String("type", string(cmd.Type)),
				zap.String("status", string(out.status)),
			)
		}
	}

	return s.Heartbeat.Write(ctx, heartbeat.Snapshot{
		Mode:        s.Config.Mode,
		Version:     s.Config.Version,
		UptimeSec:   int64(time.Since(s.startedAt).Seconds()),
		LastCycleAt: time.Now().UTC(),
		PausedPairs: paused,
	})
}

// dispatch routes one claimed command to its handler. Handler errors and
// panics become a FAILED outcome with the error and stack in the result; they
// never escape the cycle.
func (s *Service) dispatch(ctx context.Context, cmd *models.Command, paused map[string]struct{}) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{
				status: models.StatusFailed,
				result: map[string]any{
					"error": fmt.Sprintf("%v", r),
					"stack": string(debug.Stack()),
				},
			}
		}
	}()

	var err error
	switch cmd.Type {
	case models.CommandPausePair, models.CommandResumePair, models.CommandPauseAll, models.CommandResumeAll:
		out, err = s.handlePause(cmd, paused)
	case models.CommandClosePair:
		out, err = s.handleClosePair(ctx, cmd)
	case models.CommandCloseAll:
		out, err = s.handleCloseAll(ctx, cmd)
	case models.CommandReloadParams:
		out, err = s.handleReloadParams(ctx)
	default:
		// Enqueue already rejects unknown types; reaching this means the
		// stored row is inconsistent with the schema.
		out = outcome{
			status: models.StatusFailed,
			result: map[string]any{"error": fmt.Sprintf("unsupported command type: %s", cmd.Type)},
		}
	}
	if err != nil {
		return outcome{
			status: models.StatusFailed,
			result: map[string]any{
				"error": err.Error(),
				"stack": string(debug.Stack()),
			},
		}
	}
	return out
}

// handlePause mutates the in-memory paused set; the updated set is persisted
// with the cycle's heartbeat.
func (s *Service) handlePause(cmd *models.Command, paused map[string]struct{}) (outcome, error) {
	payload, err := queue.DecodePairPayload(cmd.Payload)
	if err != nil {
		return outcome{}, err
	}

	switch cmd.Type {
	case models.CommandPausePair:
		if payload.Pair != "" {
			paused[payload.Pair] = struct{}{}
		}
	case models.CommandResumePair:
		delete(paused, payload.Pair)
	case models.CommandPauseAll:
		for pair := range paused {
			delete(paused, pair)
		}
		for _, pair := range s.Config.Pairs {
			paused[pair] = struct{}{}
		}
	case models.CommandResumeAll:
		for pair := range paused {
			delete(paused, pair)
		}
	}

	if cmd.Type == models.CommandPauseAll || cmd.Type == models.CommandResumeAll {
		s.Alerts.Send(alert.EventKillSwitch, map[string]any{
			"enabled":      cmd.Type == models.CommandPauseAll,
			"source":       "command_executor",
			"reason":       string(cmd.Type),
			"pairs_closed": 0,
			"time_utc":     time.Now().UTC().Format(time.RFC3339),
		})
	}

	pairs := make([]string, 0, len(paused))
	for pair := range paused {
		pairs = append(pairs, pair)
	}
	return outcome{
		status: models.StatusSucceeded,
		result: map[string]any{"paused_pairs": sortedCopy(pairs), "type": string(cmd.Type)},
	}, nil
}

func (s *Service) handleClosePair(ctx context.Context, cmd *models.Command) (outcome, error) {
	payload, err := queue.DecodePairPayload(cmd.Payload)
	if err != nil {
		return outcome{}, err
	}
	if payload.Pair == "" {
		return outcome{status: models.StatusFailed, result: map[string]any{"error": "pair is required"}}, nil
	}

	var out outcome
	if payload.Mode == queue.ModeLive {
		out, err = s.closeLivePair(ctx, payload.Pair, cmd.ID)
	} else {
		out, err = s.closePaperPair(ctx, payload.Pair, cmd.ID)
	}
	if err != nil {
		return outcome{}, err
	}

	if out.status == models.StatusSucceeded {
		if closed, ok := out.result["closed"].(bool); ok && closed {
			s.Alerts.Send(alert.EventTradeClose, map[string]any{
				"pair":       payload.Pair,
				"result":     string(models.TradeResultManualClose),
				"exit_price": out.result["exit_price"],
				"time_utc":   time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
	return out, nil
}

func (s *Service) closePaperPair(ctx context.Context, pair string, commandID uint64) (outcome, error) {
	closed, err := s.Broker.ClosePositionAtEntry(ctx, pair, map[string]any{"command_id": commandID})
	if err != nil {
		return outcome{}, err
	}
	if closed == nil {
		result := map[string]any{"pair": pair, "reason": "position already closed", "mode": string(queue.ModePaper)}
		s.audit(ctx, models.AuditPositionCloseSkipped, commandID, result)
		return outcome{status: models.StatusSkipped, result: result}, nil
	}
	result := map[string]any{
		"pair":       pair,
		"closed":     true,
		"mode":       string(queue.ModePaper),
		"exit_price": closed.ExitPrice,
	}
	s.audit(ctx, models.AuditPositionClosed, commandID, result)
	return outcome{status: models.StatusSucceeded, result: result}, nil
}

func (s *Service) closeLivePair(ctx context.Context, pair string, commandID uint64) (outcome, error) {
	if !s.Config.LiveEnabled {
		result := map[string]any{"pair": pair, "mode": string(queue.ModeLive), "reason": "LIVE trading disabled"}
		s.audit(ctx, models.AuditLiveCloseSkipped, commandID, result)
		return outcome{status: models.StatusSkipped, result: result}, nil
	}
	if s.LiveClose == nil {
		return outcome{}, errors.New("LIVE close requested but no live close handler configured")
	}
	response, err := s.LiveClose(ctx, pair)
	if err != nil {
		return outcome{}, fmt.Errorf("live close %s: %w", pair, err)
	}
	result := map[string]any{"pair": pair, "mode": string(queue.ModeLive), "broker": response}
	s.audit(ctx, models.AuditBrokerCloseCalled, commandID, result)
	return outcome{status: models.StatusSucceeded, result: result}, nil
}

// handleCloseAll runs the PAPER and/or LIVE legs and aggregates:
// FAILED if any live leg failed, else SKIPPED if any leg skipped, else
// SUCCEEDED.
func (s *Service) handleCloseAll(ctx context.Context, cmd *models.Command) (outcome, error) {
	payload, err := queue.DecodeCloseAllPayload(cmd.Payload)
	if err != nil {
		return outcome{}, err
	}

	status := models.StatusSucceeded
	var results []map[string]any

	if payload.HasMode(queue.ModePaper) {
		positions, err := s.Repo.ListOpenPositions(ctx)
		if err != nil {
			return outcome{}, err
		}
		for _, position := range positions {
			out, err := s.closePaperPair(ctx, position.Pair, cmd.ID)
			if err != nil {
				return outcome{}, err
			}
			results = append(results, out.result)
			if out.status == models.StatusSkipped && status == models.StatusSucceeded {
				status = models.StatusSkipped
			}
		}
	}

	if payload.HasMode(queue.ModeLive) {
		for _, pair := range payload.Pairs {
			out, liveErr := s.closeLivePair(ctx, pair, cmd.ID)
			if liveErr != nil {
				results = append(results, map[string]any{"pair": pair, "mode": string(queue.ModeLive), "error": liveErr.Error()})
				status = models.StatusFailed
				continue
			}
			results = append(results, out.result)
			if out.status == models.StatusFailed {
				status = models.StatusFailed
			} else if out.status == models.StatusSkipped && status == models.StatusSucceeded {
				status = models.StatusSkipped
			}
		}
	}

	s.audit(ctx, models.AuditCloseAllSummary, cmd.ID, map[string]any{"results": results})
	s.Alerts.Send(alert.EventKillSwitch, map[string]any{
		"enabled":      true,
		"source":       "command_executor",
		"reason":       string(models.CommandCloseAll),
		"pairs_closed": len(results),
		"time_utc":     time.Now().UTC().Format(time.RFC3339),
	})
	return outcome{status: status, result: map[string]any{"results": results}}, nil
}

func (s *Service) handleReloadParams(ctx context.Context) (outcome, error) {
	if s.ReloadParams == nil {
		return outcome{
			status: models.StatusSkipped,
			result: map[string]any{"reloaded": false, "reason": "reload handler not configured"},
		}, nil
	}
	if err := s.ReloadParams(ctx); err != nil {
		return outcome{}, fmt.Errorf("reload params: %w", err)
	}
	return outcome{status: models.StatusSucceeded, result: map[string]any{"reloaded": true}}, nil
}

func (s *Service) audit(ctx context.Context, action models.AuditAction, commandID uint64, details map[string]any) {
	id := commandID
	entry := &models.AuditLogEntry{
		TS:        time.Now().UTC(),
		Actor:     s.Config.WorkerID,
		Action:    action,
		CommandID: &id,
		Details:   queue.MarshalResult(details),
	}
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		return s.Repo.InsertAuditEntryTx(ctx, tx, entry)
	})
	if err != nil && s.Logger != nil {
		s.Logger.Warn("audit write failed", zap.String("action", string(action)), zap.Error(err))
	}
}

func sortedCopy(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	sort.Strings(out)
	return out
}
