package domain

import "strings"

// ReviewItem is one queue entry: the record plus the time-limited locator
// used to display its stored image.
type ReviewItem struct {
	Record  Record `json:"record"`
	BlobURL string `json:"blob_url"`
}

// Bundle is a read-only derived view: an invoice anchor plus every record
// sharing its purchase-order number, in store-scan order, with a
// by-classification lookup for display. Bundles are recomputed from the
// store, never persisted.
type Bundle struct {
	Invoice Record   `json:"invoice"`
	Related []Record `json:"related_documents"`

	byType map[Classification]Record
}

// NewBundle builds the by-classification index. For duplicate types the
// first related document in scan order wins.
func NewBundle(invoice Record, related []Record) Bundle {
	byType := make(map[Classification]Record, len(related))
	for _, rec := range related {
		key := Classification(strings.ToUpper(string(rec.Classification)))
		if _, ok := byType[key]; !ok {
			byType[key] = rec
		}
	}
	return Bundle{Invoice: invoice, Related: related, byType: byType}
}

// SelectByType returns the first related document of the given type,
// matched case-insensitively. When no related document matches and the
// requested type is the invoice's own, the anchor itself is returned.
// A miss is a plain not-found, never an error.
func (b Bundle) SelectByType(docType Classification) (Record, bool) {
	key := Classification(strings.ToUpper(string(docType)))
	if rec, ok := b.byType[key]; ok {
		return rec, true
	}
	if key == ClassInvoice {
		return b.Invoice, true
	}
	return Record{}, false
}

// Direction moves a navigation cursor one step.
type Direction string

const (
	DirectionNext     Direction = "NEXT"
	DirectionPrevious Direction = "PREVIOUS"
)

func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(raw))) {
	case DirectionNext:
		return DirectionNext, nil
	case DirectionPrevious:
		return DirectionPrevious, nil
	default:
		return "", WrapError(ErrInvalidArgument, "parse direction",
			errUnknownLabel(raw))
	}
}
