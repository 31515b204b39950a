package domain

import (
	"strings"
	"time"
)

// Classification is the document-type label, machine-assigned at ingest
// and confirmed (or corrected) by a reviewer.
type Classification string

const (
	// ClassNotSelected is a UI sentinel for "no decision yet". It is never
	// written to the store.
	ClassNotSelected Classification = "NOT_SELECTED"
	// ClassUnclassified marks a document awaiting its first classification.
	ClassUnclassified Classification = "UNCLASSIFIED"

	ClassSalesQuotation    Classification = "SALES_QUOTATION"
	ClassPurchaseOrder     Classification = "PURCHASE_ORDER"
	ClassOrderConfirmation Classification = "ORDER_CONFIRMATION"
	ClassShippingDocument  Classification = "SHIPPING_DOCUMENT"
	ClassPackingSlip       Classification = "PACKING_SLIP"
	ClassInventoryReceipt  Classification = "INVENTORY_RECEIPT"
	ClassInvoice           Classification = "INVOICE"
	ClassPayment           Classification = "PAYMENT"
	ClassRMA               Classification = "RMA"
	ClassCredit            Classification = "CREDIT"
	// ClassNotAP marks documents irrelevant to accounts-payable processing.
	ClassNotAP Classification = "NC"
)

var knownClassifications = map[Classification]struct{}{
	ClassNotSelected:       {},
	ClassUnclassified:      {},
	ClassSalesQuotation:    {},
	ClassPurchaseOrder:     {},
	ClassOrderConfirmation: {},
	ClassShippingDocument:  {},
	ClassPackingSlip:       {},
	ClassInventoryReceipt:  {},
	ClassInvoice:           {},
	ClassPayment:           {},
	ClassRMA:               {},
	ClassCredit:            {},
	ClassNotAP:             {},
}

// ParseClassification normalizes a raw label into a known classification.
// "PO" is accepted as a legacy alias for PURCHASE_ORDER.
func ParseClassification(raw string) (Classification, error) {
	label := Classification(strings.ToUpper(strings.TrimSpace(raw)))
	if label == "PO" {
		label = ClassPurchaseOrder
	}
	if _, ok := knownClassifications[label]; !ok {
		return "", WrapError(ErrInvalidArgument, "parse classification", errUnknownLabel(raw))
	}
	return label, nil
}

// IsDecision reports whether c is a classification a reviewer may commit:
// any concrete document type, but neither sentinel.
func (c Classification) IsDecision() bool {
	if c == ClassNotSelected || c == ClassUnclassified {
		return false
	}
	_, ok := knownClassifications[c]
	return ok
}

// Stage is the document's position in the downstream pipeline, distinct
// from its classification. Stages only move forward.
type Stage string

const (
	StageReview      Stage = "REVIEW"
	StageDataExtract Stage = "DATA_EXTRACT"
	StageCompleted   Stage = "COMPLETED"
)

// Record is one stored document: identity, classification state, pipeline
// stage and the purchase-order business key. DocumentID doubles as the
// blob-store key and never changes for the lifetime of the record.
type Record struct {
	DocumentID     string         `json:"document_id"`
	Classification Classification `json:"classification"`
	Score          float64        `json:"score"`
	Stage          Stage          `json:"stage"`
	PONumber       string         `json:"po_number,omitempty"`
	ReceivedAt     time.Time      `json:"received_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HasPONumber reports whether the business key is present. Upstream
// extraction writes the key as free text; an empty string and the literal
// token "N/A" (any case) both mean absent.
func (r Record) HasPONumber() bool {
	key := strings.TrimSpace(r.PONumber)
	if key == "" {
		return false
	}
	return !strings.EqualFold(key, "N/A")
}
