package suppression

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrCorruptLedger reports an unreadable ledger file. The ledger returned
// alongside it is empty and usable.
var ErrCorruptLedger = errors.New("suppression ledger is corrupt")

type ledgerFile struct {
	NextID  int     `json:"next_id"`
	Entries []Entry `json:"entries"`
}

// Ledger is the durable list of applied suppressions. It is not safe for
// concurrent use; the Engine serializes access.
type Ledger struct {
	path    string
	entries []Entry
	nextID  int
}

// OpenLedger loads path. A missing file is an empty ledger. An unreadable
// file is moved aside and an empty ledger is returned with ErrCorruptLedger.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, nextID: 1}
	if path == "" {
		return l, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return l, fmt.Errorf("%w: %v", ErrCorruptLedger, err)
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := os.Rename(path, backup); rerr == nil {
			return l, fmt.Errorf("%w: %v (moved to %s)", ErrCorruptLedger, err, backup)
		}
		return l, fmt.Errorf("%w: %v", ErrCorruptLedger, err)
	}

	l.entries = file.Entries
	l.nextID = file.NextID
	for _, e := range l.entries {
		if e.ID >= l.nextID {
			l.nextID = e.ID + 1
		}
	}
	if l.nextID < 1 {
		l.nextID = 1
	}
	return l, nil
}

// Entries returns a copy of all entries in creation order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Get returns the entry with id.
func (l *Ledger) Get(id int) (Entry, bool) {
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Find returns the active entry for kind and detail.
func (l *Ledger) Find(kind Kind, detail string) (Entry, bool) {
	for _, e := range l.entries {
		if e.Active && e.Kind() == kind && e.Detail() == detail {
			return e, true
		}
	}
	return Entry{}, false
}

// Active returns active entries, newest first.
func (l *Ledger) Active() []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// add assigns an id, appends e and persists. On a failed write the
// in-memory list is rolled back.
func (l *Ledger) add(e Entry) (Entry, error) {
	e.ID = l.nextID
	l.entries = append(l.entries, e)
	l.nextID++
	if err := l.save(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		l.nextID--
		return e, err
	}
	return e, nil
}

// remove drops the entry with id and persists, rolling back on failure.
func (l *Ledger) remove(id int) error {
	idx := -1
	for i, e := range l.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no suppression entry %d", id)
	}
	prev := l.entries
	next := make([]Entry, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	l.entries = next
	if err := l.save(); err != nil {
		l.entries = prev
		return err
	}
	return nil
}

// save rewrites the whole file through a synced temp file and a rename.
func (l *Ledger) save() error {
	if l.path == "" {
		return nil
	}
	entries := l.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(ledgerFile{NextID: l.nextID, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".suppressions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing ledger: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting ledger mode: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}
