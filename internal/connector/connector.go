package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/rockmrack/crownsafe/internal/recall"
)

// Connector fetches recent records from one external data source in
// that source's native shape. Implementations hold their own config
// and share no mutable state with other connectors.
//
// A failed fetch returns a *FetchError; zero new records is a nil
// error with an empty slice.
type Connector interface {
	Agency() string
	Fetch(ctx context.Context, since time.Time, limit int) ([]recall.RawRecord, error)
}

// FetchError marks a source as down (timeout, non-2xx, malformed
// payload), as opposed to a source with nothing new.
type FetchError struct {
	Agency string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("connector %s: %v", e.Agency, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
