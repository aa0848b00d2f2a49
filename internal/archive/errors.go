package archive

import (
	"errors"
	"fmt"
)

// Error kinds reported across the harvester.
var (
	// ErrFetchFailure marks a listing or body the remote archive could not deliver.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrNoTextPart marks a message body without a plain-text part.
	ErrNoTextPart = errors.New("no text part")
	// ErrUnresolvedResource marks a URL that matches no resource pattern.
	ErrUnresolvedResource = errors.New("unresolved resource")
	// ErrPublishFailure marks a resource id the sink rejected.
	ErrPublishFailure = errors.New("publish failure")
	// ErrNotFound is returned by storage backends for missing objects.
	ErrNotFound = errors.New("not found")
)

// FetchOp names the remote operation that failed.
type FetchOp string

// Fetch operations.
const (
	OpList FetchOp = "list"
	OpBody FetchOp = "body"
)

// FetchError describes a failed PageFetcher call.
type FetchError struct {
	Op         FetchOp
	Coordinate Coordinate
	MessageID  MessageID
	Err        error
}

func (e *FetchError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("fetch %s %s/%s: %v", e.Op, e.Coordinate, e.MessageID, e.Err)
	}
	return fmt.Sprintf("fetch %s %s: %v", e.Op, e.Coordinate, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes every FetchError match ErrFetchFailure.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailure
}

// PublishError records one rejected resource id.
type PublishError struct {
	ResourceID string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.ResourceID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *PublishError) Unwrap() error {
	return e.Err
}

// Is makes every PublishError match ErrPublishFailure.
func (e *PublishError) Is(target error) bool {
	return target == ErrPublishFailure
}
