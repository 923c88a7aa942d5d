package monitor

import "context"

// ServiceEnumerator maps process ids to the services they host. A full
// enumeration is expensive, so the Collector calls it on a slower cadence.
type ServiceEnumerator interface {
	HostedServices(ctx context.Context) (map[int][]string, error)
}

// NoServices is an enumerator for platforms without a service manager.
type NoServices struct{}

// HostedServices implements ServiceEnumerator.
func (NoServices) HostedServices(context.Context) (map[int][]string, error) {
	return map[int][]string{}, nil
}
