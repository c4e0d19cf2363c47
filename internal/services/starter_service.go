package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soaringjerry/Procus/internal/logger"
	"github.com/soaringjerry/Procus/internal/models"
)

// ErrGatewaySend marks a failed SMS gateway delivery. The iteration stays
// closed and is retried on the next scheduling pass.
var ErrGatewaySend = errors.New("gateway send failed")

// Sender delivers one SMS. The wire protocol behind it is opaque to the
// starter.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// StarterService opens due survey rounds: expand the instrument's items into
// pending response rows, send the introductory message, and mark the
// iteration open only on a confirmed send.
type StarterService struct {
	ledger Ledger
	sender Sender
	log    *logger.Logger
	actor  string
	now    func() time.Time
}

func NewStarterService(ledger Ledger, sender Sender, log *logger.Logger, actor string) *StarterService {
	if actor == "" {
		actor = "starter"
	}
	return &StarterService{
		ledger: ledger,
		sender: sender,
		log:    log,
		actor:  actor,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OpenDueIterations processes every iteration whose scheduled open time has
// passed and is not yet open, and returns the number of rounds opened. A
// gateway failure for one recipient is logged and skipped; a store failure
// aborts the whole pass.
func (s *StarterService) OpenDueIterations(ctx context.Context) (int, error) {
	var due []*models.Iteration
	err := s.ledger.Transact(ctx, func(tx LedgerTx) error {
		var err error
		due, err = tx.DueIterations(s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		s.log.Info("no pending iterations")
		return 0, nil
	}

	opened := 0
	for _, it := range due {
		if err := s.openIteration(ctx, it); err != nil {
			if errors.Is(err, ErrGatewaySend) {
				s.log.Warn("introductory message not delivered, iteration left closed",
					"iteration_id", it.IterationID, "phone", it.PhoneNumber, "error", err)
				continue
			}
			return opened, err
		}
		opened++
		s.log.Info("recipient invited to new round",
			"iteration_id", it.IterationID, "phone", it.PhoneNumber)
	}
	return opened, nil
}

func (s *StarterService) openIteration(ctx context.Context, it *models.Iteration) error {
	if err := s.seedResponses(ctx, it); err != nil {
		return err
	}

	sendErr := s.sender.Send(ctx, it.PhoneNumber, it.MessageBody)

	// The send attempt is audited whether it succeeded or not; only a
	// confirmed send flips the iteration open.
	err := s.ledger.Transact(ctx, func(tx LedgerTx) error {
		if err := tx.RecordMessage(it.PhoneNumber, it.MessageBody, models.DirectionOutbound, ""); err != nil {
			return err
		}
		if sendErr != nil {
			return nil
		}
		return tx.OpenIteration(it.IterationID, s.actor)
	})
	if err != nil {
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("%w: %v", ErrGatewaySend, sendErr)
	}
	return nil
}

// seedResponses inserts one open row per instrument item, in item order,
// plus the closing thank-you row, all in one transaction. Iterations that
// already have rows are skipped, so a rescan after a failed send cannot
// queue the same questions twice.
func (s *StarterService) seedResponses(ctx context.Context, it *models.Iteration) error {
	return s.ledger.Transact(ctx, func(tx LedgerTx) error {
		seeded, err := tx.IterationSeeded(it.IterationID)
		if err != nil || seeded {
			return err
		}
		items, err := tx.InstrumentItems(it.InstrumentID)
		if err != nil {
			return err
		}
		opensAt := s.now()
		for _, item := range items {
			itemID := item.ItemID
			r := &models.Response{
				IterationID: it.IterationID,
				PhoneNumber: it.PhoneNumber,
				ItemID:      &itemID,
				ItemText:    item.Text,
				OpensAt:     opensAt,
				Status:      models.StatusOpen,
				UpdatedBy:   s.actor,
			}
			if err := tx.InsertResponse(r); err != nil {
				return err
			}
		}
		// The closing row is inserted last so it naturally sorts after
		// every real item in FIFO order. A nil item id marks it.
		return tx.InsertResponse(&models.Response{
			IterationID: it.IterationID,
			PhoneNumber: it.PhoneNumber,
			ItemText:    closingItemText,
			OpensAt:     opensAt,
			Status:      models.StatusOpen,
			UpdatedBy:   s.actor,
		})
	})
}
