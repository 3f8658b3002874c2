package processor

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/aptsend/relayer/pkg/db/models"
	"github.com/aptsend/relayer/pkg/settlement"
)

// Store is the slice of the database adapter the processor drives the
// transfer lifecycle through. The claim must flip PENDING to PROCESSING
// under a row lock in one short transaction.
type Store interface {
	ClaimPendingTransfer(ctx context.Context) (*models.Transfer, error)
	MarkTransferCompleted(ctx context.Context, id uint, txHash string) error
	MarkTransferFailed(ctx context.Context, id uint, message string) error
	MarkCommandSent(ctx context.Context, transfer *models.Transfer) (bool, error)
}

// Result is the structured outcome of one processor invocation.
type Result struct {
	Processed int
	Invalid   int
}

type Service struct {
	store     Store
	executor  settlement.Executor
	minAmount uint64
	validate  *validator.Validate
}

func NewService(store Store, executor settlement.Executor, minAmount uint64) *Service {
	return &Service{
		store:     store,
		executor:  executor,
		minAmount: minAmount,
		validate:  validator.New(),
	}
}

// ProcessOne claims and settles at most one pending transfer. The claim
// transaction commits before anything slow runs, so a stalled settlement
// call never blocks other invocations from claiming their own rows.
// Validation and adapter failures are terminal: the transfer goes to FAILED
// and stays there.
func (s *Service) ProcessOne(ctx context.Context) (Result, error) {
	transfer, err := s.store.ClaimPendingTransfer(ctx)
	if err != nil {
		// Claim failures leave no partial state; the next tick retries.
		return Result{}, fmt.Errorf("claim transfer: %w", err)
	}
	if transfer == nil {
		log.Info().Msg("[Processor] [ProcessOne] no pending transfers")
		return Result{}, nil
	}

	log.Info().Uint("transferId", transfer.ID).Msg("[Processor] [ProcessOne] claimed transfer")

	req, validationErr := s.buildRequest(transfer)
	if validationErr != "" {
		if err := s.store.MarkTransferFailed(ctx, transfer.ID, validationErr); err != nil {
			return Result{}, fmt.Errorf("record validation failure: %w", err)
		}
		log.Warn().Uint("transferId", transfer.ID).Str("reason", validationErr).
			Msg("[Processor] [ProcessOne] transfer failed validation")
		return Result{Invalid: 1}, nil
	}

	txHash, execErr := s.executor.Execute(ctx, req)
	if execErr != nil {
		message := fmt.Sprintf("Process execution failed: %s", execErr.Error())
		if err := s.store.MarkTransferFailed(ctx, transfer.ID, message); err != nil {
			return Result{}, fmt.Errorf("record settlement failure: %w", err)
		}
		log.Error().Err(execErr).Uint("transferId", transfer.ID).
			Msg("[Processor] [ProcessOne] settlement failed")
		return Result{}, nil
	}

	if err := s.store.MarkTransferCompleted(ctx, transfer.ID, txHash); err != nil {
		return Result{}, fmt.Errorf("record settlement success: %w", err)
	}
	if _, err := s.store.MarkCommandSent(ctx, transfer); err != nil {
		// The transfer itself is settled; a failed sent-flag update is an
		// audit gap, not a lost transfer.
		log.Warn().Err(err).Uint("transferId", transfer.ID).
			Msg("[Processor] [ProcessOne] failed to flag originating command as sent")
	}

	log.Info().Uint("transferId", transfer.ID).Str("txHash", txHash).
		Msg("[Processor] [ProcessOne] transfer completed")
	return Result{Processed: 1}, nil
}

// buildRequest validates the business rules and assembles the settlement
// request. A non-empty return string is the permanent failure message;
// validation failures are never retried.
func (s *Service) buildRequest(transfer *models.Transfer) (settlement.Request, string) {
	function := settlement.FunctionCrossChannel
	if transfer.IsSameChannel() {
		function = settlement.FunctionWithinChannel
	}
	req := settlement.Request{
		TransferID:  transfer.ID,
		FromChannel: transfer.FromChannel,
		FromUserID:  transfer.FromUserID,
		ToChannel:   transfer.ToChannel,
		ToUserID:    transfer.ToUserID,
		Amount:      transfer.Amount,
		Function:    function,
	}

	if transfer.FromChannel == "" || transfer.FromUserID == "" {
		return req, "Missing sender information"
	}
	if transfer.ToChannel == "" || transfer.ToUserID == "" {
		return req, "Missing recipient information"
	}
	if transfer.Amount == 0 {
		return req, "Amount must be greater than 0"
	}
	if transfer.Amount < s.minAmount {
		return req, fmt.Sprintf("Amount must be at least %d Octas", s.minAmount)
	}
	if err := s.validate.Struct(req); err != nil {
		return req, fmt.Sprintf("Invalid settlement request: %s", err.Error())
	}
	return req, ""
}
