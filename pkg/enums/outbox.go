package enums

import "slices"

// OutboxAggregateType identifies the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateTender        OutboxAggregateType = "tender"
	AggregatePurchaseOrder OutboxAggregateType = "purchase_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTender,
	AggregatePurchaseOrder,
}

func (a OutboxAggregateType) String() string { return string(a) }

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// OutboxEventType names a tender lifecycle event relayed after commit.
type OutboxEventType string

const (
	EventTenderCreated   OutboxEventType = "tender_created"
	EventTenderUpdated   OutboxEventType = "tender_updated"
	EventTenderPublished OutboxEventType = "tender_published"
	EventTenderClosed    OutboxEventType = "tender_closed"
	EventTenderAwarded   OutboxEventType = "tender_awarded"
	EventTenderCancelled OutboxEventType = "tender_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTenderCreated,
	EventTenderUpdated,
	EventTenderPublished,
	EventTenderClosed,
	EventTenderAwarded,
	EventTenderCancelled,
}

func (e OutboxEventType) String() string { return string(e) }

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// OutboxDLQErrorReason explains why the relay dead-lettered an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: publishing kept failing transiently.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row can never be published as stored.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) String() string { return string(r) }

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
