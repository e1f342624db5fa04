package recall

import "time"

// Strong identifier kinds recognised across sources.
const (
	IdentifierUPC         = "upc"
	IdentifierEAN         = "ean"
	IdentifierGTIN        = "gtin"
	IdentifierModelNumber = "model_number"
	IdentifierLotNumber   = "lot_number"
)

var IdentifierKinds = []string{
	IdentifierUPC,
	IdentifierEAN,
	IdentifierGTIN,
	IdentifierModelNumber,
	IdentifierLotNumber,
}

// RawRecord is a source-native payload as decoded from a connector
// response, before normalization.
type RawRecord map[string]any

// Record is the canonical normalized recall notice. Dedup key is
// (agency, source_id).
type Record struct {
	Agency      string            `json:"agency"`
	SourceID    string            `json:"source_id"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	Name        string            `json:"name,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	FetchedAt   time.Time         `json:"fetched_at"`
	Payload     map[string]any    `json:"payload,omitempty"`
}

type Key struct {
	Agency   string
	SourceID string
}

func (r Record) Key() Key {
	return Key{Agency: r.Agency, SourceID: r.SourceID}
}

type UpsertOutcome string

const (
	OutcomeInserted UpsertOutcome = "inserted"
	OutcomeUpdated  UpsertOutcome = "updated"
)

type BatchResult struct {
	Inserted int
	Updated  int
}

func (b BatchResult) Total() int {
	return b.Inserted + b.Updated
}
