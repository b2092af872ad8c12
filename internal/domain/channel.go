package domain

import "context"

// QueryProcessor answers one user query end to end. The agent loop implements it;
// user-facing channels depend only on this.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, userText string) (string, error)
}

// Channel is a user-facing I/O surface that feeds queries to a QueryProcessor.
type Channel interface {
	Name() string
	Run(ctx context.Context, p QueryProcessor) error
}
