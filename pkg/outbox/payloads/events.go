package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
)

// TenderCreatedEvent records a new draft.
type TenderCreatedEvent struct {
	TenderID uuid.UUID `json:"tender_id"`
	Number   string    `json:"number"`
	BuyerID  uuid.UUID `json:"buyer_id"`
}

// TenderUpdatedEvent lists the draft fields a buyer changed.
type TenderUpdatedEvent struct {
	TenderID uuid.UUID `json:"tender_id"`
	Number   string    `json:"number"`
	BuyerID  uuid.UUID `json:"buyer_id"`
	Fields   []string  `json:"fields"`
}

// TenderPublishedEvent announces a tender open for offers.
type TenderPublishedEvent struct {
	TenderID           uuid.UUID  `json:"tender_id"`
	Number             string     `json:"number"`
	BuyerID            uuid.UUID  `json:"buyer_id"`
	Title              string     `json:"title"`
	SubmissionDeadline time.Time  `json:"submission_deadline"`
	DecryptionDate     *time.Time `json:"decryption_date,omitempty"`
	IsPublic           bool       `json:"is_public"`
}

// TenderClosedEvent is emitted once the deadline sweep closes a tender.
type TenderClosedEvent struct {
	TenderID        uuid.UUID `json:"tender_id"`
	Number          string    `json:"number"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	OpeningReportID uuid.UUID `json:"opening_report_id"`
	ReceivedCount   int       `json:"received_count"`
	ValidCount      int       `json:"valid_count"`
	ClosedAt        time.Time `json:"closed_at"`
}

// TenderAwardedEvent carries the purchase order created by an award.
type TenderAwardedEvent struct {
	TenderID            uuid.UUID       `json:"tender_id"`
	Number              string          `json:"number"`
	BuyerID             uuid.UUID       `json:"buyer_id"`
	SupplierID          uuid.UUID       `json:"supplier_id"`
	SubmissionID        uuid.UUID       `json:"submission_id"`
	PurchaseOrderID     uuid.UUID       `json:"purchase_order_id"`
	PurchaseOrderNumber string          `json:"purchase_order_number"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Currency            enums.Currency  `json:"currency"`
}

// TenderCancelledEvent is emitted when a buyer cancels a non-terminal tender.
type TenderCancelledEvent struct {
	TenderID       uuid.UUID          `json:"tender_id"`
	Number         string             `json:"number"`
	BuyerID        uuid.UUID          `json:"buyer_id"`
	PreviousStatus enums.TenderStatus `json:"previous_status"`
	Reason         *string            `json:"reason,omitempty"`
}

// TenderScoped is implemented by every payload keyed by a tender.
type TenderScoped interface {
	TenderKey() uuid.UUID
}

func (e TenderCreatedEvent) TenderKey() uuid.UUID { return e.TenderID }
func (e TenderUpdatedEvent) TenderKey() uuid.UUID { return e.TenderID }
func (e TenderPublishedEvent) TenderKey() uuid.UUID { return e.TenderID }
func (e TenderClosedEvent) TenderKey() uuid.UUID { return e.TenderID }
func (e TenderAwardedEvent) TenderKey() uuid.UUID { return e.TenderID }
func (e TenderCancelledEvent) TenderKey() uuid.UUID { return e.TenderID }
