package enums

import "fmt"

// OutboxDLQErrorReason records why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// Pub/Sub kept failing until the attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// The row or its payload can never be published as written.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// No descriptor is registered for the event type.
	OutboxDLQReasonUnknownEvent OutboxDLQErrorReason = "unknown_event"
)

// transientDLQReasons lists reasons where the row itself is fine and a
// requeue can succeed without a deploy.
var transientDLQReasons = map[OutboxDLQErrorReason]bool{
	OutboxDLQReasonMaxAttempts:  true,
	OutboxDLQReasonNonRetryable: false,
	OutboxDLQReasonUnknownEvent: false,
}

func (r OutboxDLQErrorReason) String() string {
	return string(r)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	_, ok := transientDLQReasons[r]
	return ok
}

// Transient reports whether requeueing the row can succeed as is.
func (r OutboxDLQErrorReason) Transient() bool {
	return transientDLQReasons[r]
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid outbox dlq reason %q", value)
	}
	return r, nil
}
