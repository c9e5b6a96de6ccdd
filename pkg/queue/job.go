package queue

import "context"

// Job handles one message type. Handle runs once per message: an error parks
// the message on the failed list, it is not redelivered.
type Job interface {
	// Name is used in logs.
	Name() string
	// Type is the message type routed to this job, e.g. "signal.dispatch".
	Type() string
	// Handle receives the payload as raw JSON; decode it with ParsePayload.
	Handle(ctx context.Context, payload interface{}) error
}
