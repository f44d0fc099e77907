// Package events is the append-only journal of tunnel session lifecycle
// records, one JSON object per line.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/treykane/cfrok/internal/appconfig"
	"github.com/treykane/cfrok/internal/model"
)

// Event types written by the session orchestrator.
const (
	TypeStartRequested = "start_requested"
	TypeStateChanged   = "state_changed"
	TypeStartFailed    = "start_failed"
	TypeRunning        = "running"
	TypeStopRequested  = "stop_requested"
	TypeStopped        = "stopped"
	TypeDaemonExited   = "daemon_exited"
)

// Event is one session lifecycle record persisted to events.jsonl.
type Event struct {
	Timestamp time.Time          `json:"timestamp"`
	SessionID string             `json:"session_id,omitempty"`
	Subdomain string             `json:"subdomain,omitempty"`
	EventType string             `json:"event_type"`
	State     model.SessionState `json:"state,omitempty"`
	Message   string             `json:"message,omitempty"`
	PID       int                `json:"pid,omitempty"`
}

// Ends reports whether no further events follow this one for its session.
func (e Event) Ends() bool {
	switch e.EventType {
	case TypeStopped, TypeDaemonExited, TypeStartFailed:
		return true
	}
	return false
}

// Query controls event filtering and bounded reads.
type Query struct {
	Subdomain string
	SessionID string
	EventType string
	Since     time.Time
	Limit     int
}

func (q Query) matches(evt Event) bool {
	if v := strings.TrimSpace(q.Subdomain); v != "" && evt.Subdomain != v {
		return false
	}
	if v := strings.TrimSpace(q.SessionID); v != "" && evt.SessionID != v {
		return false
	}
	if v := strings.TrimSpace(q.EventType); v != "" && evt.EventType != v {
		return false
	}
	return q.Since.IsZero() || !evt.Timestamp.Before(q.Since)
}

// Store appends to and reads the journal file. The daemon watcher and Stop
// may record concurrently, so appends are serialized.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store at the default location under the cfrok config
// directory.
func NewStore() *Store {
	return &Store{}
}

// NewStoreAt returns a store backed by an explicit file.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Path resolves the journal file location.
func (s *Store) Path() (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	return appconfig.EventsFilePath()
}

// Append writes evt as one JSON line, stamping it with the current time if
// it has none. The journal is created 0600 in a 0700 directory.
func (s *Store) Append(evt Event) error {
	path, err := s.Path()
	if err != nil {
		return err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read returns events in append order, filtered by q. With a positive Limit
// only the newest Limit matches are kept. A missing journal reads as empty;
// lines that do not decode are skipped.
func (s *Store) Read(q Query) ([]Event, error) {
	path, err := s.Path()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var evt Event
		if json.Unmarshal([]byte(raw), &evt) != nil || !q.matches(evt) {
			continue
		}
		out = append(out, evt)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

// SessionRecord folds the events of one session.
type SessionRecord struct {
	SessionID string             `json:"session_id"`
	Subdomain string             `json:"subdomain,omitempty"`
	PID       int                `json:"pid,omitempty"`
	Requested time.Time          `json:"requested"`
	Running   time.Time          `json:"running,omitzero"`
	Ended     time.Time          `json:"ended,omitzero"`
	State     model.SessionState `json:"state,omitempty"`
	Last      string             `json:"last_event"`
	Message   string             `json:"message,omitempty"`
}

// Open reports whether the journal never recorded the end of the session.
func (r SessionRecord) Open() bool { return r.Ended.IsZero() }

// Uptime is how long the daemon ran, or zero if it never reached running.
// Open sessions are measured up to now.
func (r SessionRecord) Uptime(now time.Time) time.Duration {
	if r.Running.IsZero() {
		return 0
	}
	if r.Open() {
		return now.Sub(r.Running)
	}
	return r.Ended.Sub(r.Running)
}

// Sessions groups evts by session id in order of first appearance. Events
// without a session id are ignored.
func Sessions(evts []Event) []SessionRecord {
	index := map[string]int{}
	var out []SessionRecord
	for _, e := range evts {
		if e.SessionID == "" {
			continue
		}
		i, ok := index[e.SessionID]
		if !ok {
			i = len(out)
			index[e.SessionID] = i
			out = append(out, SessionRecord{SessionID: e.SessionID, Requested: e.Timestamp})
		}
		r := &out[i]
		if e.Subdomain != "" {
			r.Subdomain = e.Subdomain
		}
		if e.PID > 0 {
			r.PID = e.PID
		}
		if e.State != "" {
			r.State = e.State
		}
		switch {
		case e.EventType == TypeRunning:
			r.Running = e.Timestamp
		case e.Ends():
			r.Ended = e.Timestamp
			r.Message = e.Message
		}
		r.Last = e.EventType
	}
	return out
}
