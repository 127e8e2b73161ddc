package application

import "context"

// Worker represents a background processor.
// Implementations run until the context is canceled or their work is finished.
type Worker interface {
	Start(ctx context.Context)
}
