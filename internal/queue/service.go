// Package queue implements the durable command queue: idempotent enqueue,
// exactly-one-claimant claim, terminal finish and stale-RUNNING recovery.
// All coordination between workers happens through conditional updates on the
// commands table; the queue holds no in-process locks.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"scalpbot/internal/models"
	"scalpbot/internal/repository"
)

var (
	// ErrInvalidCommandType rejects enqueues whose type is outside the
	// seven-value allow-list.
	ErrInvalidCommandType = errors.New("invalid command type")

	// ErrCommandFinished means Finish was called on a command that is not
	// RUNNING — a design invariant violation, not an expected outcome.
	ErrCommandFinished = errors.New("command already finished")

	errClaimLost = errors.New("claim lost")
)

type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// Enqueue inserts one PENDING command plus its COMMAND_ENQUEUED audit entry in
// a single transaction. When idempotencyKey matches an existing row the
// existing command's id is returned and nothing is written.
func (s *Service) Enqueue(ctx context.Context, actor string, cmdType models.CommandType, payload datatypes.JSON, idempotencyKey *string) (uint64, error) {
	if !ValidType(cmdType) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCommandType, cmdType)
	}

	if idempotencyKey != nil && *idempotencyKey != "" {
		existing, err := s.Repo.GetCommandByIdempotencyKey(ctx, *idempotencyKey)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			return existing.ID, nil
		}
	} else {
		idempotencyKey = nil
	}

	cmd := &models.Command{
		CreatedAt:      time.Now().UTC(),
		Actor:          actor,
		Type:           cmdType,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
		Status:         models.StatusPending,
	}
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.InsertCommandTx(ctx, tx, cmd); err != nil {
			return err
		}
		details := map[string]any{"type": string(cmdType)}
		if idempotencyKey != nil {
			details["idempotency_key"] = *idempotencyKey
		}
		return s.Repo.InsertAuditEntryTx(ctx, tx, auditEntry(actor, models.AuditCommandEnqueued, cmd.ID, details))
	})
	if err != nil {
		return 0, err
	}
	return cmd.ID, nil
}

// ClaimNextPending picks the oldest PENDING command and races the conditional
// PENDING -> RUNNING update for it. A lost race returns (nil, nil): no work
// this cycle, re-poll later.
func (s *Service) ClaimNextPending(ctx context.Context, workerID string) (*models.Command, error) {
	candidate, err := s.Repo.NextPendingCommand(ctx)
	if err != nil || candidate == nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.Repo.MarkCommandRunningTx(ctx, tx, candidate.ID, workerID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errClaimLost
		}
		if err := s.Repo.InsertAuditEntryTx(ctx, tx, auditEntry(workerID, models.AuditCommandClaimed, candidate.ID, map[string]any{
			"previous_status": string(models.StatusPending),
		})); err != nil {
			return err
		}
		return s.Repo.InsertAuditEntryTx(ctx, tx, auditEntry(workerID, models.AuditCommandExecutionStarted, candidate.ID, map[string]any{
			"type": string(candidate.Type),
		}))
	})
	if errors.Is(err, errClaimLost) {
		if s.Logger != nil {
			s.Logger.Debug("command claim lost", zap.Uint64("command_id", candidate.ID), zap.String("worker", workerID))
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Repo.GetCommandByID(ctx, candidate.ID)
}

// Finish records the terminal status, finish time, result and one
// COMMAND_COMPLETED audit entry atomically.
func (s *Service) Finish(ctx context.Context, commandID uint64, status models.CommandStatus, result datatypes.JSON, actor string) error {
	if !status.Terminal() {
		return fmt.Errorf("non-terminal finish status: %s", status)
	}
	now := time.Now().UTC()
	return s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.Repo.FinishCommandTx(ctx, tx, commandID, status, result, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: id=%d", ErrCommandFinished, commandID)
		}
		var resultDetail any
		if len(result) > 0 {
			resultDetail = json.RawMessage(result)
		}
		return s.Repo.InsertAuditEntryTx(ctx, tx, auditEntry(actor, models.AuditCommandCompleted, commandID, map[string]any{
			"status": string(status),
			"result": resultDetail,
		}))
	})
}

// SweepStaleRunning force-fails RUNNING commands whose claimant never came
// back. Runs before claiming each cycle so a crashed worker cannot strand a
// command forever.
func (s *Service) SweepStaleRunning(ctx context.Context, timeout time.Duration, workerID string) ([]uint64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	stale, err := s.Repo.ListRunningStartedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	var swept []uint64
	for _, cmd := range stale {
		result := MarshalResult(map[string]any{"error": "stale RUNNING command timed out"})
		if err := s.Finish(ctx, cmd.ID, models.StatusFailed, result, workerID); err != nil {
			// Another sweeper may have finished it first; that is fine.
			if errors.Is(err, ErrCommandFinished) {
				continue
			}
			return swept, err
		}
		if s.Logger != nil {
			s.Logger.Warn("stale RUNNING command failed by sweep",
				zap.Uint64("command_id", cmd.ID),
				zap.String("handled_by", cmd.HandledBy),
			)
		}
		swept = append(swept, cmd.ID)
	}
	return swept, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.Command, error) {
	return s.Repo.GetCommandByID(ctx, id)
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]models.Command, error) {
	return s.Repo.ListRecentCommands(ctx, limit)
}

func (s *Service) AuditTrail(ctx context.Context, commandID uint64) ([]models.AuditLogEntry, error) {
	return s.Repo.ListAuditByCommandID(ctx, commandID)
}

func auditEntry(actor string, action models.AuditAction, commandID uint64, details map[string]any) *models.AuditLogEntry {
	id := commandID
	return &models.AuditLogEntry{
		TS:        time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		CommandID: &id,
		Details:   MarshalResult(details),
	}
}
