// pkg/txnlog/txnlog.go - durable append-only transaction log.
//
// Each action attempt is recorded as JSON lines in <root>/.rollout/txn.log:
// a pending line when the attempt starts, then a committed or failed line
// for the same sequence number when it resolves. Lines are flushed and
// synced as they are appended and never rewritten, so a crash at any point
// leaves a log that recovers to the exact committed prefix. A torn trailing
// line (crash mid-write) is treated as not written.

package txnlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/windowsadmins/rollout/pkg/action"
)

// Outcome is the resolution state of a logged action attempt.
type Outcome string

const (
	Pending   Outcome = "pending"
	Committed Outcome = "committed"
	Failed    Outcome = "failed"
)

// Undo captures the prior state an action observed before mutating, which
// is everything reverse-application needs beyond the action itself.
type Undo struct {
	// DirCreated reports whether make_dir actually created the directory.
	DirCreated bool `json:"dir_created,omitempty" yaml:"dir_created,omitempty"`
	// Replaced reports whether copy_file overwrote an existing file; the
	// displaced file is preserved at BackupPath for reverse-application.
	Replaced   bool   `json:"replaced,omitempty" yaml:"replaced,omitempty"`
	BackupPath string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	// PriorValue is the registry value set_registry_value displaced, if any.
	PriorValue *string `json:"prior_value,omitempty" yaml:"prior_value,omitempty"`
	// KeyExisted and PriorValues record the state delete_registry_key removed.
	KeyExisted  bool              `json:"key_existed,omitempty" yaml:"key_existed,omitempty"`
	PriorValues map[string]string `json:"prior_values,omitempty" yaml:"prior_values,omitempty"`
}

// Entry is one line of the transaction log.
type Entry struct {
	Seq     uint64         `json:"seq"`
	Outcome Outcome        `json:"outcome"`
	Action  *action.Action `json:"action,omitempty"`
	Undo    *Undo          `json:"undo,omitempty"`
	Error   string         `json:"error,omitempty"`
	Time    time.Time      `json:"time"`
}

// Header is the first line of the log file.
type Header struct {
	RunID       string    `json:"run_id"`
	Product     string    `json:"product"`
	Version     string    `json:"version"`
	InstallRoot string    `json:"install_root"`
	ProcessName string    `json:"process_name,omitempty"`
	Started     time.Time `json:"started"`
}

// Log owns the open transaction log file. A Log belongs to exactly one
// engine run; the install-root lock enforces that externally.
type Log struct {
	f       *os.File
	path    string
	header  Header
	actions map[uint64]*action.Action
	status  map[uint64]Outcome
	undo    map[uint64]*Undo
	order   []uint64
	nextSeq uint64
}

// LogPath returns the transaction log location under an install root.
func LogPath(root string) string {
	return filepath.Join(root, action.RecordDirName, "txn.log")
}

// RecordPath returns the sealed install record location under a root.
func RecordPath(root string) string {
	return filepath.Join(root, action.RecordDirName, action.RecordFileName)
}

// BackupPath returns where the file displaced by the given sequence number
// is preserved. Backups live in the record directory so they survive as
// long as the install they belong to and vanish with it.
func BackupPath(root string, seq uint64) string {
	return filepath.Join(root, action.RecordDirName, "backup", fmt.Sprintf("%d", seq))
}

// Create starts a fresh transaction log for an install run.
func Create(root string, m *action.Manifest) (*Log, error) {
	path := LogPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating transaction log: %w", err)
	}

	l := &Log{
		f:    f,
		path: path,
		header: Header{
			RunID:       uuid.New().String(),
			Product:     m.Product,
			Version:     m.Version,
			InstallRoot: root,
			ProcessName: m.ProcessName,
			Started:     time.Now().UTC(),
		},
		actions: make(map[uint64]*action.Action),
		status:  make(map[uint64]Outcome),
		undo:    make(map[uint64]*Undo),
		nextSeq: 1,
	}
	if err := l.writeLine(l.header); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Open reads an existing transaction log, e.g. after a crash, resolving
// each sequence number to its last recorded outcome. The file is reopened
// for appending so recovery actions can be logged too.
func Open(root string) (*Log, error) {
	path := LogPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transaction log: %w", err)
	}

	l := &Log{
		path:    path,
		actions: make(map[uint64]*action.Action),
		status:  make(map[uint64]Outcome),
		undo:    make(map[uint64]*Undo),
		nextSeq: 1,
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			if err := json.Unmarshal(line, &l.header); err != nil {
				return nil, fmt.Errorf("corrupt transaction log header: %w", err)
			}
			first = false
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Torn trailing write; everything before it is intact.
			break
		}
		l.apply(e)
	}
	if first {
		return nil, fmt.Errorf("transaction log %s is empty", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("reopening transaction log: %w", err)
	}
	l.f = f
	return l, nil
}

func (l *Log) apply(e Entry) {
	if _, seen := l.status[e.Seq]; !seen {
		l.order = append(l.order, e.Seq)
	}
	l.status[e.Seq] = e.Outcome
	if e.Action != nil {
		l.actions[e.Seq] = e.Action
	}
	if e.Undo != nil {
		l.undo[e.Seq] = e.Undo
	}
	if e.Seq >= l.nextSeq {
		l.nextSeq = e.Seq + 1
	}
}

func (l *Log) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("appending to transaction log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing transaction log: %w", err)
	}
	return nil
}

// Head returns the log's run metadata.
func (l *Log) Head() Header {
	return l.header
}

// AppendPending records the start of an action attempt and returns its
// sequence number.
func (l *Log) AppendPending(a action.Action) (uint64, error) {
	seq := l.nextSeq
	e := Entry{Seq: seq, Outcome: Pending, Action: &a, Time: time.Now().UTC()}
	if err := l.writeLine(e); err != nil {
		return 0, err
	}
	l.apply(e)
	return seq, nil
}

// AppendCommitted resolves a pending attempt as committed, with the undo
// state captured during execution.
func (l *Log) AppendCommitted(seq uint64, undo *Undo) error {
	e := Entry{Seq: seq, Outcome: Committed, Undo: undo, Time: time.Now().UTC()}
	if err := l.writeLine(e); err != nil {
		return err
	}
	l.apply(e)
	return nil
}

// AppendFailed resolves a pending attempt as failed.
func (l *Log) AppendFailed(seq uint64, cause error) error {
	e := Entry{Seq: seq, Outcome: Failed, Error: cause.Error(), Time: time.Now().UTC()}
	if err := l.writeLine(e); err != nil {
		return err
	}
	l.apply(e)
	return nil
}

// CommittedEntries returns the committed prefix in forward sequence order.
// Only these entries have externally observable effects to reverse.
func (l *Log) CommittedEntries() []RecordEntry {
	var out []RecordEntry
	for _, seq := range l.order {
		if l.status[seq] != Committed {
			continue
		}
		a := l.actions[seq]
		if a == nil {
			continue
		}
		out = append(out, RecordEntry{Seq: seq, Action: *a, Undo: l.undo[seq]})
	}
	return out
}

// PendingEntries returns entries whose last recorded outcome is still
// pending, in forward sequence order. After a crash these may or may not
// have taken effect; reversing them is a best-effort cleanup.
func (l *Log) PendingEntries() []RecordEntry {
	var out []RecordEntry
	for _, seq := range l.order {
		if l.status[seq] != Pending {
			continue
		}
		a := l.actions[seq]
		if a == nil {
			continue
		}
		out = append(out, RecordEntry{Seq: seq, Action: *a, Undo: l.undo[seq]})
	}
	return out
}

// Close closes the underlying file without removing it.
func (l *Log) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Discard closes and deletes the transaction log, used after a completed
// rollback when nothing remains to undo.
func (l *Log) Discard() error {
	if err := l.Close(); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	// Remove the record dir too if nothing else lives there.
	os.Remove(filepath.Dir(l.path))
	return nil
}

// Seal converts a fully committed log into the durable install record and
// removes the transaction log. The record is the only artifact uninstall
// needs.
func (l *Log) Seal() (*InstallRecord, error) {
	rec := &InstallRecord{
		Product:     l.header.Product,
		Version:     l.header.Version,
		InstallRoot: l.header.InstallRoot,
		ProcessName: l.header.ProcessName,
		RunID:       l.header.RunID,
		SealedAt:    time.Now().UTC(),
		Entries:     l.CommittedEntries(),
	}
	if err := rec.save(RecordPath(l.header.InstallRoot)); err != nil {
		return nil, err
	}
	// Backups of displaced files only serve rollback of this run; a sealed
	// run will never roll back.
	os.RemoveAll(filepath.Join(l.header.InstallRoot, action.RecordDirName, "backup"))
	if err := l.Close(); err != nil {
		return nil, err
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing transaction log after seal: %w", err)
	}
	return rec, nil
}
