package entity

import (
	"context"
	"errors"
	"fmt"
)

// QuoteStore is the read-only boundary to the raw quote backing store.
// An instrument+tenor with no current quotes returns an empty slice, not an
// error; only connectivity/timeout failures surface as TransientStoreError.
type QuoteStore interface {
	FetchRawQuotes(ctx context.Context, instrument string, tenor TenorSelector) ([]RawQuoteRecord, error)
}

// TransientStoreError wraps a connectivity or timeout failure against the
// backing store. The affected instrument is skipped for the cycle and retried
// on the next one.
type TransientStoreError struct {
	Op    string
	Cause error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Cause)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Cause
}

func IsTransientStoreError(err error) bool {
	var storeErr *TransientStoreError
	return errors.As(err, &storeErr)
}
