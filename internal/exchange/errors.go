package exchange

import "fmt"

// SchemaError is returned when a venue payload does not have the expected shape.
// It is not retried for the same payload.
type SchemaError struct {
	Exchange   string
	Instrument string
	Reason     string
	Raw        []byte
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s in instmt %s-%s. original: %s", e.Reason, e.Exchange, e.Instrument, e.Raw)
}

// TransportError is returned when the venue could not be queried.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StorageError is returned when a sink fails to persist an update.
type StorageError struct {
	Sink  string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage, table %s: %v", e.Sink, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
