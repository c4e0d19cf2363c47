package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/soaringjerry/Procus/internal/logger"
	"github.com/soaringjerry/Procus/internal/models"
)

// RestartCommand resets a recipient's round when received as the exact
// message body.
const RestartCommand = "Restart"

const (
	missingSenderPrompt = "Houston, we have a problem"
	repromptText        = "Husk svare med blot èt heltal fra listen ovenfor."
	closingPromptText   = "Der ser ikke ud til at være nogle åbne spørgsmål til dig.\nSvar 'Restart' for at starte forfra."
	closingItemText     = "Tak for din hjælp!"
)

// ConversationOptions carries the per-deployment knobs of the reply state
// machine.
type ConversationOptions struct {
	// Inclusive bounds for a valid answer.
	AnswerMin int
	AnswerMax int
	// Whether Restart leaves the recipient's iteration open.
	RestartReopensIteration bool
	// Actor tag written to updated_by columns.
	Actor string
}

// ConversationEngine drives the per-phone-number reply state machine: match
// the inbound body against the awaiting question, record the answer, advance
// to the next pending question until the instrument is exhausted.
type ConversationEngine struct {
	ledger Ledger
	index  *AwaitingIndex
	log    *logger.Logger
	opts   ConversationOptions
}

func NewConversationEngine(ledger Ledger, index *AwaitingIndex, log *logger.Logger, opts ConversationOptions) *ConversationEngine {
	if opts.AnswerMin == 0 && opts.AnswerMax == 0 {
		opts.AnswerMin, opts.AnswerMax = 1, 5
	}
	if opts.Actor == "" {
		opts.Actor = "server"
	}
	return &ConversationEngine{ledger: ledger, index: index, log: log, opts: opts}
}

// indexOp is a staged index mutation, applied only after the transaction
// commits so the cache never gets ahead of the store.
type indexOp int

const (
	indexKeep indexOp = iota
	indexDrop
	indexSet
)

// HandleInbound runs the reply state machine for one inbound SMS and returns
// the outbound text. ref is the gateway's message id when provided; a ref
// already seen for this phone number marks a retried delivery, which is
// answered deterministically without touching any response row.
func (e *ConversationEngine) HandleInbound(ctx context.Context, phone, body, ref string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		e.log.Critical("inbound message without a sender phone number", "body", body)
		return missingSenderPrompt, nil
	}

	var (
		outbound string
		op       indexOp
		setID    int64
	)
	err := e.ledger.Transact(ctx, func(tx LedgerTx) error {
		if ref != "" {
			seen, err := tx.SeenInboundRef(phone, ref)
			if err != nil {
				return err
			}
			if seen {
				return e.handleDuplicate(tx, phone, body, ref, &outbound)
			}
		}
		if err := tx.RecordMessage(phone, body, models.DirectionInbound, ref); err != nil {
			return err
		}

		if body == RestartCommand {
			op = indexDrop
			return e.restart(tx, phone, &outbound)
		}

		pending, err := tx.CountAwaiting(phone)
		if err != nil {
			return err
		}
		if pending == 0 {
			// Stale cache entry with no counterpart in the store.
			op = indexDrop
		} else {
			answer, ok := e.parseAnswer(body)
			if !ok {
				outbound = repromptText
				return tx.RecordMessage(phone, outbound, models.DirectionOutbound, "")
			}
			if err := e.closeAwaiting(tx, phone, answer); err != nil {
				return err
			}
		}

		next, err := tx.NextOpenResponse(phone)
		if err != nil {
			return err
		}
		if next != nil {
			if err := tx.MarkAwaiting(next.ResponseID, e.opts.Actor); err != nil {
				return err
			}
			op, setID = indexSet, next.ResponseID
			outbound = next.ItemText
		} else {
			// Nothing left to ask: the closed row must leave the index too.
			op = indexDrop
			outbound = closingPromptText
		}
		return tx.RecordMessage(phone, outbound, models.DirectionOutbound, "")
	})
	if err != nil {
		return "", err
	}

	switch op {
	case indexDrop:
		e.index.Remove(phone)
	case indexSet:
		e.index.Set(phone, setID)
	}
	return outbound, nil
}

// handleDuplicate answers a retried webhook delivery: the inbound is still
// audited, but no response row changes state. The reply repeats whatever the
// recipient should be looking at now.
func (e *ConversationEngine) handleDuplicate(tx LedgerTx, phone, body, ref string, outbound *string) error {
	e.log.Info("duplicate inbound delivery", "phone", phone, "ref", ref)
	if err := tx.RecordMessage(phone, body, models.DirectionInbound, ref); err != nil {
		return err
	}
	awaiting, err := tx.AwaitingResponse(phone)
	if err != nil {
		return err
	}
	if awaiting != nil {
		*outbound = awaiting.ItemText
	} else {
		*outbound = closingPromptText
	}
	return tx.RecordMessage(phone, *outbound, models.DirectionOutbound, "")
}

// restart reopens the recipient's round: every response row back to open
// with the answer cleared, and the introductory message replayed.
func (e *ConversationEngine) restart(tx LedgerTx, phone string, outbound *string) error {
	if err := tx.SetIterationsOpen(phone, e.opts.RestartReopensIteration, e.opts.Actor); err != nil {
		return err
	}
	if err := tx.ResetResponses(phone, e.opts.Actor); err != nil {
		return err
	}
	intro, found, err := tx.LatestIterationMessage(phone)
	if err != nil {
		return err
	}
	if !found {
		// Nothing was ever scheduled for this number.
		intro = closingPromptText
	}
	*outbound = intro
	return tx.RecordMessage(phone, intro, models.DirectionOutbound, "")
}

// closeAwaiting records the answer on the awaiting row. The index is only a
// fast-path hint: when its entry is missing or stale (another instance may
// have advanced this phone number), the store's awaiting row is consulted
// instead. Zero rows updated with no awaiting counterpart means a concurrent
// close already won; both outcomes advance the conversation.
func (e *ConversationEngine) closeAwaiting(tx LedgerTx, phone string, answer int) error {
	if id, ok := e.index.Get(phone); ok {
		closed, err := tx.CloseResponse(id, phone, answer, e.opts.Actor)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
		e.log.Debug("awaiting index entry stale", "phone", phone, "response_id", id)
	}
	row, err := tx.AwaitingResponse(phone)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}
	_, err = tx.CloseResponse(row.ResponseID, phone, answer, e.opts.Actor)
	return err
}

// parseAnswer accepts a single integer within the configured inclusive
// bounds; anything else is an input error handled with a reprompt.
func (e *ConversationEngine) parseAnswer(body string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return 0, false
	}
	if n < e.opts.AnswerMin || n > e.opts.AnswerMax {
		return 0, false
	}
	return n, true
}
