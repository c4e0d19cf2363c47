package services

import (
	"context"
	"time"

	"github.com/soaringjerry/Procus/internal/models"
)

// Ledger abstracts the durable store shared by the conversation engine and
// the starter. Every mutation happens through Transact so one inbound
// message (or one seeding step) commits or rolls back atomically.
type Ledger interface {
	Transact(ctx context.Context, fn func(tx LedgerTx) error) error

	// AwaitingResponses returns the phone number -> response id pairs
	// currently in status awaiting, for rebuilding the index at startup.
	AwaitingResponses(ctx context.Context) (map[string]int64, error)
}

// LedgerTx is the per-transaction surface of the ledger. The awaiting rows
// in the responses table are the ground truth the in-memory index caches.
type LedgerTx interface {
	// RecordMessage appends to the SMS audit log. ref is the gateway's
	// message id when known, empty otherwise.
	RecordMessage(phone, body string, direction models.MessageDirection, ref string) error
	// SeenInboundRef reports whether an inbound message with the given
	// gateway ref was already recorded for this phone number.
	SeenInboundRef(phone, ref string) (bool, error)

	CountAwaiting(phone string) (int, error)
	// AwaitingResponse returns the row currently awaiting an answer for
	// the phone number, or nil if there is none.
	AwaitingResponse(phone string) (*models.Response, error)
	// CloseResponse records the answer on the row only if it still matches
	// (id, phone, status awaiting) and reports whether a row was updated.
	// Zero rows updated means a concurrent close won and is not an error.
	CloseResponse(responseID int64, phone string, answer int, actor string) (bool, error)
	// NextOpenResponse returns the oldest open row for the phone number
	// (ascending response id preserves instrument item order), or nil.
	NextOpenResponse(phone string) (*models.Response, error)
	MarkAwaiting(responseID int64, actor string) error

	SetIterationsOpen(phone string, open bool, actor string) error
	// ResetResponses puts every row for the phone number back to open with
	// the recorded answer cleared.
	ResetResponses(phone string, actor string) error
	// LatestIterationMessage returns the introductory message of the most
	// recent iteration for the phone number.
	LatestIterationMessage(phone string) (string, bool, error)

	DueIterations(now time.Time) ([]*models.Iteration, error)
	InstrumentItems(instrumentID int64) ([]*models.Item, error)
	// IterationSeeded reports whether response rows already exist for the
	// iteration, so a rescan after a failed send cannot seed twice.
	IterationSeeded(iterationID int64) (bool, error)
	InsertResponse(r *models.Response) error
	OpenIteration(iterationID int64, actor string) error
}
