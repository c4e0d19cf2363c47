package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soaringjerry/Procus/internal/models"
)

// fakeLedger is an in-memory Ledger for service tests. Transactions are
// serialized by a mutex; rollback is not simulated because the services
// under test never continue after a failed transaction.
type fakeLedger struct {
	mu         sync.Mutex
	responses  []*models.Response
	iterations []*models.Iteration
	items      map[int64][]*models.Item
	messages   []models.Message
	nextRespID int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{items: map[int64][]*models.Item{}, nextRespID: 1}
}

func (l *fakeLedger) Transact(_ context.Context, fn func(tx LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&fakeTx{l: l})
}

func (l *fakeLedger) AwaitingResponses(context.Context) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[string]int64{}
	for _, r := range l.responses {
		if r.Status == models.StatusAwaiting {
			out[r.PhoneNumber] = r.ResponseID
		}
	}
	return out, nil
}

func (l *fakeLedger) addIteration(it models.Iteration) *models.Iteration {
	cp := it
	l.iterations = append(l.iterations, &cp)
	return &cp
}

func (l *fakeLedger) addItem(instrumentID, itemID int64, text string) {
	l.items[instrumentID] = append(l.items[instrumentID], &models.Item{
		ItemID: itemID, InstrumentID: instrumentID, Text: text,
	})
}

func (l *fakeLedger) addResponse(phone string, iterationID int64, itemID *int64, text string, status models.ResponseStatus) *models.Response {
	r := &models.Response{
		ResponseID:  l.nextRespID,
		IterationID: iterationID,
		PhoneNumber: phone,
		ItemID:      itemID,
		ItemText:    text,
		Status:      status,
	}
	l.nextRespID++
	l.responses = append(l.responses, r)
	return r
}

func (l *fakeLedger) closedCount(phone string) int {
	n := 0
	for _, r := range l.responses {
		if r.PhoneNumber == phone && r.Status == models.StatusClosed {
			n++
		}
	}
	return n
}

func (l *fakeLedger) awaitingCount(phone string) int {
	n := 0
	for _, r := range l.responses {
		if r.PhoneNumber == phone && r.Status == models.StatusAwaiting {
			n++
		}
	}
	return n
}

func (l *fakeLedger) outboundBodies(phone string) []string {
	var out []string
	for _, m := range l.messages {
		if m.PhoneNumber == phone && m.Direction == models.DirectionOutbound {
			out = append(out, m.Body)
		}
	}
	return out
}

type fakeTx struct {
	l *fakeLedger
}

func (t *fakeTx) RecordMessage(phone, body string, direction models.MessageDirection, ref string) error {
	t.l.messages = append(t.l.messages, models.Message{
		PhoneNumber: phone, Body: body, Direction: direction, GatewayRef: ref,
	})
	return nil
}

func (t *fakeTx) SeenInboundRef(phone, ref string) (bool, error) {
	for _, m := range t.l.messages {
		if m.PhoneNumber == phone && m.GatewayRef == ref && m.Direction == models.DirectionInbound {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) CountAwaiting(phone string) (int, error) {
	return t.l.awaitingCount(phone), nil
}

func (t *fakeTx) AwaitingResponse(phone string) (*models.Response, error) {
	return t.firstWithStatus(phone, models.StatusAwaiting), nil
}

func (t *fakeTx) NextOpenResponse(phone string) (*models.Response, error) {
	return t.firstWithStatus(phone, models.StatusOpen), nil
}

func (t *fakeTx) firstWithStatus(phone string, status models.ResponseStatus) *models.Response {
	var found *models.Response
	for _, r := range t.l.responses {
		if r.PhoneNumber != phone || r.Status != status {
			continue
		}
		if found == nil || r.ResponseID < found.ResponseID {
			found = r
		}
	}
	return found
}

func (t *fakeTx) CloseResponse(responseID int64, phone string, answer int, actor string) (bool, error) {
	for _, r := range t.l.responses {
		if r.ResponseID == responseID && r.PhoneNumber == phone && r.Status == models.StatusAwaiting {
			a := answer
			r.Answer = &a
			r.Status = models.StatusClosed
			r.UpdatedBy = actor
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) MarkAwaiting(responseID int64, actor string) error {
	for _, r := range t.l.responses {
		if r.ResponseID == responseID {
			r.Status = models.StatusAwaiting
			r.UpdatedBy = actor
		}
	}
	return nil
}

func (t *fakeTx) SetIterationsOpen(phone string, open bool, actor string) error {
	for _, it := range t.l.iterations {
		if it.PhoneNumber == phone {
			it.IsOpen = open
			it.UpdatedBy = actor
		}
	}
	return nil
}

func (t *fakeTx) ResetResponses(phone string, actor string) error {
	for _, r := range t.l.responses {
		if r.PhoneNumber == phone {
			r.Status = models.StatusOpen
			r.Answer = nil
			r.UpdatedBy = actor
		}
	}
	return nil
}

func (t *fakeTx) LatestIterationMessage(phone string) (string, bool, error) {
	var latest *models.Iteration
	for _, it := range t.l.iterations {
		if it.PhoneNumber != phone {
			continue
		}
		if latest == nil || it.IterationID > latest.IterationID {
			latest = it
		}
	}
	if latest == nil {
		return "", false, nil
	}
	return latest.MessageBody, true, nil
}

func (t *fakeTx) DueIterations(now time.Time) ([]*models.Iteration, error) {
	var out []*models.Iteration
	for _, it := range t.l.iterations {
		if !it.IsOpen && !it.OpensAt.After(now) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IterationID < out[j].IterationID })
	return out, nil
}

func (t *fakeTx) InstrumentItems(instrumentID int64) ([]*models.Item, error) {
	items := append([]*models.Item(nil), t.l.items[instrumentID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

func (t *fakeTx) IterationSeeded(iterationID int64) (bool, error) {
	for _, r := range t.l.responses {
		if r.IterationID == iterationID {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) InsertResponse(r *models.Response) error {
	cp := *r
	cp.ResponseID = t.l.nextRespID
	t.l.nextRespID++
	t.l.responses = append(t.l.responses, &cp)
	return nil
}

func (t *fakeTx) OpenIteration(iterationID int64, actor string) error {
	for _, it := range t.l.iterations {
		if it.IterationID == iterationID {
			it.IsOpen = true
			it.UpdatedBy = actor
		}
	}
	return nil
}
