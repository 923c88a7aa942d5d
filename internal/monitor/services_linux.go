//go:build linux

package monitor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iamgilwell/procguard/internal/sysexec"
)

// SystemdServices asks systemd for the main pid of every running service.
type SystemdServices struct {
	Runner sysexec.Runner
}

// DefaultServiceEnumerator returns the enumerator for this platform.
func DefaultServiceEnumerator() ServiceEnumerator {
	return SystemdServices{Runner: sysexec.ExecRunner{}}
}

// HostedServices implements ServiceEnumerator.
func (s SystemdServices) HostedServices(ctx context.Context) (map[int][]string, error) {
	out, err := s.Runner.Run(ctx, "systemctl", "list-units", "--type=service", "--state=running", "--no-legend", "--plain")
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	var units []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && strings.HasSuffix(fields[0], ".service") {
			units = append(units, fields[0])
		}
	}
	if len(units) == 0 {
		return map[int][]string{}, nil
	}

	args := append([]string{"show", "--property=Id,MainPID"}, units...)
	out, err = s.Runner.Run(ctx, "systemctl", args...)
	if err != nil {
		return nil, fmt.Errorf("reading service pids: %w", err)
	}
	return parseShowMainPID(out), nil
}

// parseShowMainPID parses blank-line separated "Key=Value" blocks.
func parseShowMainPID(out []byte) map[int][]string {
	result := make(map[int][]string)
	var id string
	pid := 0
	flush := func() {
		if id != "" && pid > 0 {
			result[pid] = append(result[pid], strings.TrimSuffix(id, ".service"))
		}
		id, pid = "", 0
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "Id":
			id = val
		case "MainPID":
			pid, _ = strconv.Atoi(val)
		}
	}
	flush()
	for _, names := range result {
		sort.Strings(names)
	}
	return result
}
