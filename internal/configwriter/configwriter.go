// Package configwriter implements the atomic per-directory session config
// writer (C7). A child AI assistant discovers its tool servers by reading
// a well-known JSON file in its working directory; when several sessions
// share a working directory, each must register its own entry into that
// shared file without racing or clobbering entries it doesn't own.
package configwriter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/sys/atomicwriter"
)

// ConfigFileName is the well-known file the sidecar-compatible assistant
// reads from its working directory.
const ConfigFileName = ".mcp.json"

// ManagedEntryName is the fixed key under which corral's own entry lives;
// anything else in the file is left untouched across rewrites.
const ManagedEntryName = "corral-status"

// ManagedMarkerEnv is stamped into the managed entry's env block so a
// reader can recognize a corral-authored entry even if ManagedEntryName
// were ever renamed.
const ManagedMarkerEnv = "CORRAL_MANAGED"

// Entry is one server registration in a session config file: either a
// stdio-launched process or an HTTP endpoint.
type Entry struct {
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

var dirMutexes sync.Map // map[string]*sync.Mutex

func lockFor(dir string) *sync.Mutex {
	v, _ := dirMutexes.LoadOrStore(dir, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// WriteSidecarEntry registers the sidecar for sessionID in dir's config
// file, replacing any existing managed entry. extras are merged into the
// managed entry's environment on top of the three required variables.
func WriteSidecarEntry(dir string, sessionID uint32, sidecarPath, ingressURL, instanceID string, extras map[string]string) error {
	entry := Entry{
		Type:    "stdio",
		Command: sidecarPath,
		Env: map[string]string{
			"SESSION_ID":     fmt.Sprintf("%d", sessionID),
			"STATUS_URL":     ingressURL,
			"INSTANCE_ID":    instanceID,
			ManagedMarkerEnv: "1",
		},
	}
	for k, v := range extras {
		entry.Env[k] = v
	}
	return rewrite(dir, &entry)
}

// RemoveSidecarEntry drops the managed entry from dir's config file. It is
// a write with the empty managed set, so it is idempotent and a no-op if
// there was never a managed entry there.
func RemoveSidecarEntry(dir string) error {
	return rewrite(dir, nil)
}

// rewrite performs one read-merge-rename cycle under dir's mutex. A nil
// entry removes the managed key; a non-nil entry replaces it.
func rewrite(dir string, entry *Entry) error {
	mu := lockFor(dir)
	mu.Lock()
	defer mu.Unlock()

	path := filepath.Join(dir, ConfigFileName)
	doc, err := readDoc(path)
	if err != nil {
		return err
	}

	delete(doc, ManagedEntryName)
	if entry != nil {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("configwriter: marshal entry: %w", err)
		}
		doc[ManagedEntryName] = raw
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("configwriter: marshal document: %w", err)
	}
	out = append(out, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("configwriter: ensure directory: %w", err)
	}
	if err := atomicwriter.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("configwriter: atomic write: %w", err)
	}
	return nil
}

func readDoc(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("configwriter: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("configwriter: parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}
