package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-engine/internal/lock"
	"github.com/noah-isme/pos-engine/internal/obs"
)

// TypePrint is the asynq task type for receipt print jobs.
const TypePrint = "receipt:print"

// PrintPayload is the body of a print task.
type PrintPayload struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Number        string    `json:"number"`
}

// Enqueuer schedules receipt printing. Printing is fire-and-forget: a failed
// enqueue is reported to the caller so it can fall back to the on-screen
// receipt, but never fails the checkout.
type Enqueuer struct {
	Client *asynq.Client
	Queue  string
}

// EnqueuePrint schedules a print job for the transaction.
func (e Enqueuer) EnqueuePrint(ctx context.Context, transactionID uuid.UUID, number string) error {
	if e.Client == nil {
		return errors.New("receipt: task client not configured")
	}
	payload, err := json.Marshal(PrintPayload{TransactionID: transactionID, Number: number})
	if err != nil {
		return fmt.Errorf("receipt: encode payload: %w", err)
	}
	queue := e.Queue
	if queue == "" {
		queue = "default"
	}
	task := asynq.NewTask(TypePrint, payload, asynq.Queue(queue), asynq.MaxRetry(3))
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		obs.ReceiptPrintTotal.WithLabelValues("enqueue_error").Inc()
		return fmt.Errorf("receipt: enqueue print: %w", err)
	}
	obs.ReceiptPrintTotal.WithLabelValues("enqueued").Inc()
	return nil
}

// Printer renders a receipt for a submitted transaction.
type Printer interface {
	Print(ctx context.Context, transactionID uuid.UUID, number string) error
}

// NewPrintHandler adapts a Printer into an asynq task handler.
func NewPrintHandler(printer Printer, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload PrintPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			obs.ReceiptPrintTotal.WithLabelValues("bad_payload").Inc()
			return fmt.Errorf("receipt: decode payload: %w", asynq.SkipRetry)
		}
		if err := printer.Print(ctx, payload.TransactionID, payload.Number); err != nil {
			obs.ReceiptPrintTotal.WithLabelValues("print_error").Inc()
			logger.Error().Err(err).
				Str("transaction_id", payload.TransactionID.String()).
				Msg("print receipt")
			return err
		}
		obs.ReceiptPrintTotal.WithLabelValues("printed").Inc()
		return nil
	}
}

// LogPrinter writes receipts to the structured log. It stands in for the real
// thermal printer driver in development and tests.
type LogPrinter struct {
	Logger zerolog.Logger
}

// Print implements Printer.
func (p LogPrinter) Print(_ context.Context, transactionID uuid.UUID, number string) error {
	p.Logger.Info().
		Str("transaction_id", transactionID.String()).
		Str("number", number).
		Msg("receipt printed")
	return nil
}

// LockedPrinter serialises print jobs against a shared physical printer.
// Concurrent workers contend on a Redis lock so only one job drives the
// device at a time.
type LockedPrinter struct {
	Inner  Printer
	Locker lock.Locker
	Key    string
	TTL    time.Duration
}

// Print implements Printer.
func (p LockedPrinter) Print(ctx context.Context, transactionID uuid.UUID, number string) error {
	if p.Inner == nil {
		return errors.New("receipt: inner printer not configured")
	}
	key := p.Key
	if key == "" {
		key = "printer:main"
	}
	return p.Locker.WithLock(ctx, key, p.TTL, func(ctx context.Context) error {
		return p.Inner.Print(ctx, transactionID, number)
	})
}
