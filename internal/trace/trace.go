// Package trace persists every autopilot decision to an append-only JSONL
// file. Entries are hash-chained: each record carries prev_hash (the hash of
// the preceding entry) and its own hash, so tampering anywhere in the file is
// detectable offline via VerifyIntegrity.
package trace

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/atlasbridge/atlasbridge/internal/policy"
)

const (
	// Filename is the default trace file name under the config directory.
	Filename = "autopilot_decisions.jsonl"

	// DefaultMaxBytes triggers rotation once the active file reaches 10 MiB.
	DefaultMaxBytes = 10 * 1024 * 1024

	// MaxArchives bounds how many rotated siblings are kept.
	MaxArchives = 3
)

// computeHash hashes one trace entry. The chain input is
// prev_hash + idempotency_key + action_type + canonical JSON of the entry
// (without its hash field).
func computeHash(prevHash string, entry map[string]any) string {
	canonical := canonicalJSON(entry)
	input := prevHash + str(entry["idempotency_key"]) + str(entry["action_type"]) + canonical
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func canonicalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	c, err := jcs.Transform(raw)
	if err != nil {
		return string(raw)
	}
	return string(c)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// DecisionTrace is an append-only JSONL writer with size-based rotation.
// Safe for concurrent use within one process; concurrent multi-process
// writers need an external lock.
type DecisionTrace struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	lastHash string
}

// New opens (or creates) a trace at path and resumes the hash chain from the
// last entry in the active file.
func New(path string, maxBytes int64) (*DecisionTrace, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	t := &DecisionTrace{path: path, maxBytes: maxBytes}
	t.lastHash = loadLastHash(path)
	return t, nil
}

func (t *DecisionTrace) Path() string { return t.path }

// loadLastHash reads the hash of the last entry so the chain continues
// correctly across process restarts.
func loadLastHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lastLine string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lastLine = line
		}
	}
	if lastLine == "" {
		return ""
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lastLine), &entry); err != nil {
		return ""
	}
	return str(entry["hash"])
}

// maybeRotate shifts archives and starts a fresh file once the active file
// reaches maxBytes. Renames complete before any new entry is written, and
// the in-memory chain resets with the rotation.
func (t *DecisionTrace) maybeRotate() {
	info, err := os.Stat(t.path)
	if err != nil || info.Size() < t.maxBytes {
		return
	}

	// Shift existing archives oldest-first: .2 -> .3, .1 -> .2.
	for i := MaxArchives - 1; i >= 1; i-- {
		old := fmt.Sprintf("%s.%d", t.path, i)
		next := fmt.Sprintf("%s.%d", t.path, i+1)
		if _, err := os.Stat(old); err == nil {
			if err := os.Rename(old, next); err != nil {
				slog.Warn("trace_rotate_failed", "old", old, "new", next, "error", err)
			}
		}
	}

	archive := t.path + ".1"
	if err := os.Rename(t.path, archive); err != nil {
		slog.Warn("trace_archive_failed", "path", t.path, "error", err)
	}

	// New chain starts after rotation.
	t.lastHash = ""
}

// Record appends one decision to the trace, rotating first if needed. Write
// failures are logged and swallowed: trace durability is best-effort and
// must never crash the decision pipeline.
func (t *DecisionTrace) Record(d policy.Decision) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeRotate()

	entry, err := decisionToMap(d)
	if err != nil {
		slog.Error("trace_encode_failed", "prompt_id", d.PromptID, "error", err)
		return
	}
	entry["prev_hash"] = t.lastHash
	hash := computeHash(t.lastHash, entry)
	entry["hash"] = hash

	line, err := json.Marshal(entry)
	if err != nil {
		slog.Error("trace_encode_failed", "prompt_id", d.PromptID, "error", err)
		return
	}

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Error("trace_write_failed", "path", t.path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Error("trace_write_failed", "path", t.path, "error", err)
		return
	}
	t.lastHash = hash
}

func decisionToMap(d policy.Decision) (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Tail returns the last n entries of the active file, oldest first.
func (t *DecisionTrace) Tail(n int) []map[string]any {
	f, err := os.Open(t.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// VerifyIntegrity streams a trace file once and checks the hash chain.
// Every violation is reported with a 1-based line number; verification is
// exhaustive, not fail-fast. Legacy entries without hash fields reset the
// expected prev_hash (chain restart), which is not an error.
func VerifyIntegrity(path string) (bool, []string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, []string{fmt.Sprintf("failed to read trace file: %v", err)}
	}
	defer f.Close()

	var errs []string
	prevHash := ""
	lineNo := 0

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		lineNo++

		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			errs = append(errs, fmt.Sprintf("line %d: invalid JSON: %v", lineNo, err))
			prevHash = ""
			continue
		}

		storedHash, hasHash := entry["hash"]
		_, hasPrev := entry["prev_hash"]
		if !hasHash || !hasPrev {
			// Legacy entry: treat as chain start.
			prevHash = ""
			continue
		}

		if str(entry["prev_hash"]) != prevHash {
			errs = append(errs, fmt.Sprintf(
				"line %d: prev_hash mismatch: expected %q, got %q",
				lineNo, prevHash, str(entry["prev_hash"])))
		}

		delete(entry, "hash")
		recomputed := computeHash(str(entry["prev_hash"]), entry)
		if str(storedHash) != recomputed {
			errs = append(errs, fmt.Sprintf(
				"line %d: hash mismatch: stored %q, computed %q",
				lineNo, str(storedHash), recomputed))
		}

		prevHash = str(storedHash)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Sprintf("failed to read trace file: %v", err))
	}

	return len(errs) == 0, errs
}
