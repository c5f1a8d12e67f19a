// pkg/txnlog/record.go - the sealed install record.

package txnlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/rollout/pkg/action"
)

// RecordEntry is one committed action plus the prior state needed to
// reverse it.
type RecordEntry struct {
	Seq    uint64        `yaml:"seq" json:"seq"`
	Action action.Action `yaml:"action" json:"action"`
	Undo   *Undo         `yaml:"undo,omitempty" json:"undo,omitempty"`
}

// InstallRecord is the sealed transaction log of a successful install. It
// lives at a fixed path under the install root for the lifetime of the
// installed product and is destroyed when uninstall completes.
type InstallRecord struct {
	Product     string        `yaml:"product"`
	Version     string        `yaml:"version"`
	InstallRoot string        `yaml:"install_root"`
	ProcessName string        `yaml:"process_name,omitempty"`
	RunID       string        `yaml:"run_id"`
	SealedAt    time.Time     `yaml:"sealed_at"`
	Entries     []RecordEntry `yaml:"entries"`
}

func (r *InstallRecord) save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("serializing install record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating record directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating install record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing install record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadRecord reads a sealed install record.
func LoadRecord(path string) (*InstallRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading install record %s: %w", path, err)
	}
	var rec InstallRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing install record %s: %w", path, err)
	}
	if rec.InstallRoot == "" {
		return nil, fmt.Errorf("install record %s has no install root", path)
	}
	return &rec, nil
}

// Remove deletes the sealed record and its directory if now empty.
func (r *InstallRecord) Remove() error {
	path := RecordPath(r.InstallRoot)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	os.Remove(filepath.Dir(path))
	return nil
}
