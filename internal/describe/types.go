package describe

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/iamgilwell/procguard/internal/monitor"
)

// Source is where a description came from.
type Source string

const (
	SourceCatalog  Source = "catalog"
	SourceCmdline  Source = "cmdline"
	SourceAI       Source = "ai"
	SourceExecPath Source = "exe_path"
	SourceUnknown  Source = "unknown"
)

// Description is human-readable text about a process. It never affects
// safety classification.
type Description struct {
	Name       string `json:"name"`
	Text       string `json:"text"`
	Category   string `json:"category,omitempty"`
	KillImpact string `json:"kill_impact,omitempty"`
	Source     Source `json:"source"`
	FromCache  bool   `json:"from_cache,omitempty"`
}

// Resolver turns a process record into a Description.
type Resolver interface {
	Describe(ctx context.Context, rec *monitor.ProcessRecord) (Description, error)
}

// Signature generates a cache key from the parts of a record that shape its description.
func Signature(rec *monitor.ProcessRecord) string {
	raw := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(rec.Name),
		strings.ToLower(rec.ExePath),
		rec.CommandLine,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", hash[:8])
}

func unknown(rec *monitor.ProcessRecord) Description {
	text := "Unknown process"
	if rec.ExePath != "" {
		text = "Located at: " + rec.ExePath
	}
	src := SourceUnknown
	if rec.ExePath != "" {
		src = SourceExecPath
	}
	return Description{Name: rec.Name, Text: text, Category: "unknown", Source: src}
}
