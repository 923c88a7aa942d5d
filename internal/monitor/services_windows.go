//go:build windows

package monitor

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sys/windows/svc/mgr"
)

// SCMServices queries the Service Control Manager for service process ids.
type SCMServices struct{}

// DefaultServiceEnumerator returns the enumerator for this platform.
func DefaultServiceEnumerator() ServiceEnumerator {
	return SCMServices{}
}

// HostedServices implements ServiceEnumerator.
func (SCMServices) HostedServices(ctx context.Context) (map[int][]string, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	names, err := m.ListServices()
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}

	result := make(map[int][]string)
	for _, name := range names {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s, err := m.OpenService(name)
		if err != nil {
			continue
		}
		status, err := s.Query()
		s.Close()
		if err != nil || status.ProcessId == 0 {
			continue
		}
		pid := int(status.ProcessId)
		result[pid] = append(result[pid], name)
	}
	for _, names := range result {
		sort.Strings(names)
	}
	return result, nil
}
