package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNoEvents        = errors.New("no change events to report")
)

// TransientError - сетевая ошибка или не-2xx ответ. Retried by the fetcher.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FetchError - retries exhausted. Aborts the run for this source only.
type FetchError struct {
	Source   string
	Offset   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s offset=%d failed after %d attempts: %v", e.Source, e.Offset, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ProtocolError - тело не разбирается или status != "ok". Never retried.
type ProtocolError struct {
	Source string
	Offset int
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error from %s offset=%d: %s: %v", e.Source, e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error from %s offset=%d: %s", e.Source, e.Offset, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DataContractError - у одного товара нет обязательного поля.
// Only that item is skipped, the page survives.
type DataContractError struct {
	Index     int
	ProductID string
	Field     string
}

func (e *DataContractError) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("item #%d (%s): missing field %q", e.Index, e.ProductID, e.Field)
	}
	return fmt.Sprintf("item #%d: missing field %q", e.Index, e.Field)
}
