package health

import "context"

// DBPinger checks vector store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ComponentChecker checks availability of one external dependency
// (blob store, vision provider, embedding provider).
type ComponentChecker interface {
	HealthCheck(ctx context.Context) error
}
