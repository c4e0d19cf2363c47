package models

import "time"

// ResponseStatus tracks the lifecycle of a single question instance.
type ResponseStatus string

const (
	StatusOpen     ResponseStatus = "open"     // seeded, not yet presented
	StatusAwaiting ResponseStatus = "awaiting" // presented, waiting for an answer
	StatusClosed   ResponseStatus = "closed"   // answer recorded
)

// MessageDirection marks whether an SMS was received or sent.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// Recipient is a survey participant. The phone number is the natural key
// used by every other table; the surrogate id exists only for bookkeeping.
type Recipient struct {
	RecipientID int64
	PhoneNumber string
	FullName    string
	CreatedAt   time.Time
}

// Instrument is a named questionnaire definition.
type Instrument struct {
	InstrumentID int64
	Name         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedBy    string
}

// Item is one question belonging to an instrument. Items are read-only
// reference data during conversation processing.
type Item struct {
	ItemID       int64
	InstrumentID int64
	Text         string
	CreatedAt    time.Time
	UpdatedBy    string
}

// Iteration is one scheduled survey round for one recipient. IsOpen flips
// false->true exactly once, after the introductory message is confirmed sent.
type Iteration struct {
	IterationID  int64
	InstrumentID int64
	PhoneNumber  string
	MessageBody  string
	IsOpen       bool
	OpensAt      time.Time
	CreatedAt    time.Time
	UpdatedBy    string
}

// Response records the lifecycle of one question instance for one recipient.
// ItemID is nil for the synthetic closing "thank you" row; Answer is nil
// until the row is closed. ResponseID is monotonic and defines FIFO order
// within a phone number.
type Response struct {
	ResponseID  int64
	IterationID int64
	PhoneNumber string
	ItemID      *int64
	ItemText    string
	OpensAt     time.Time
	Answer      *int
	Status      ResponseStatus
	CreatedAt   time.Time
	UpdatedBy   string
}

// Message is one row of the append-only SMS audit log. Rows are written by
// both the starter and the conversation engine; core logic only ever reads
// the gateway ref, for duplicate-delivery detection.
type Message struct {
	MessageID   int64
	SentAt      time.Time
	PhoneNumber string
	Body        string
	Direction   MessageDirection
	GatewayRef  string
}
