package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks across the store and providers.
type Service struct {
	db         DBPinger
	components map[string]ComponentChecker
}

// New creates a Service with only the mandatory store check.
func New(db DBPinger) *Service {
	return &Service{db: db, components: make(map[string]ComponentChecker)}
}

// WithComponent registers an optional named component check.
// nil checkers are ignored so callers can pass unconfigured providers.
func (s *Service) WithComponent(name string, c ComponentChecker) *Service {
	if c != nil {
		s.components[name] = c
	}
	return s
}

// Check runs health checks against all registered components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	for name, c := range s.components {
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = CheckError
		} else {
			checks[name] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
