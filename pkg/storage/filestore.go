// Package storage persists conversations on disk: metadata as YAML, the
// message log and history as append-only JSONL files.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/roundtablehq/roundtable/pkg/groupchat"
)

const (
	metadataFile = "conversation.yml"
	logFile      = "log.jsonl"
	historyFile  = "history.jsonl"
)

// FileStore implements groupchat.Store over a directory tree:
// <root>/<conversation-id>/{conversation.yml,log.jsonl,history.jsonl}.
// Metadata writes go through a temp file and an atomic rename guarded by a
// stale-aware lock file; log writes are plain appends.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create store root %s", dir)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) convDir(id string) string {
	return filepath.Join(s.root, id)
}

// LoadConversation implements groupchat.Store.
func (s *FileStore) LoadConversation(id string) (*groupchat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.convDir(id), metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(groupchat.ErrConversationNotFound, id)
		}
		return nil, errors.Wrapf(err, "read conversation %s", id)
	}

	var conv groupchat.Conversation
	if err := yaml.Unmarshal(data, &conv); err != nil {
		return nil, errors.Wrapf(err, "parse conversation %s", id)
	}
	return &conv, nil
}

// SaveConversation implements groupchat.Store.
func (s *FileStore) SaveConversation(c *groupchat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.convDir(c.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create conversation dir %s", dir)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal conversation")
	}

	path := filepath.Join(dir, metadataFile)
	lock, err := s.lockFile(path)
	if err != nil {
		return errors.Wrap(err, "acquire lock")
	}
	defer lock.Unlock()

	return writeAtomic(path, data)
}

// AddOrUpdateParticipant implements groupchat.Store by rewriting the
// conversation metadata with the seat upserted.
func (s *FileStore) AddOrUpdateParticipant(conversationID string, p *groupchat.Participant) error {
	conv, err := s.LoadConversation(conversationID)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range conv.Participants {
		if existing.Name == p.Name {
			conv.Participants[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		conv.Participants = append(conv.Participants, p)
	}
	conv.UpdatedAt = time.Now()

	return s.SaveConversation(conv)
}

// AppendLogEntry implements groupchat.Store. One JSON object per line,
// ordered by append time.
func (s *FileStore) AppendLogEntry(logRef string, e groupchat.MessageEntry) error {
	return s.appendJSONL(filepath.Join(s.convDir(logRef), logFile), e)
}

// ReadLog implements groupchat.Store.
func (s *FileStore) ReadLog(logRef string) ([]groupchat.MessageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.convDir(logRef), logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open log %s", logRef)
	}
	defer f.Close()

	var entries []groupchat.MessageEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e groupchat.MessageEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, errors.Wrapf(err, "parse log entry in %s", logRef)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan log %s", logRef)
	}
	return entries, nil
}

// AppendHistoryEntry implements groupchat.Store.
func (s *FileStore) AppendHistoryEntry(conversationID string, e groupchat.HistoryEntry) error {
	return s.appendJSONL(filepath.Join(s.convDir(conversationID), historyFile), e)
}

// ReadHistory returns all derived history entries for a conversation.
func (s *FileStore) ReadHistory(conversationID string) ([]groupchat.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.convDir(conversationID), historyFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open history %s", conversationID)
	}
	defer f.Close()

	var entries []groupchat.HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e groupchat.HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, errors.Wrapf(err, "parse history entry in %s", conversationID)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan history %s", conversationID)
	}
	return entries, nil
}

// ListConversations returns every stored conversation, newest first.
func (s *FileStore) ListConversations() ([]*groupchat.Conversation, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrapf(err, "read store root %s", s.root)
	}

	var out []*groupchat.Conversation
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		conv, err := s.LoadConversation(d.Name())
		if err != nil {
			if errors.Is(err, groupchat.ErrConversationNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, conv)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].UpdatedAt.After(out[i].UpdatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *FileStore) appendJSONL(path string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "create dir for %s", path)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal entry")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.Wrapf(err, "append to %s", path)
	}
	return nil
}

// File locking

// fileLock represents a lock on a file.
type fileLock struct {
	path string
	file *os.File
}

func (s *FileStore) lockFile(path string) (*fileLock, error) {
	lockPath := path + ".lock"

	// Try to create lock file exclusively
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, err
		}
		// Check if lock is stale (older than 5 minutes)
		info, statErr := os.Stat(lockPath)
		if statErr != nil || time.Since(info.ModTime()) <= 5*time.Minute {
			return nil, errors.New("file is locked")
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.New("file is locked")
		}
	}

	// Write PID for debugging
	fmt.Fprintf(file, "%d\n", os.Getpid())
	file.Sync()

	return &fileLock{path: lockPath, file: file}, nil
}

// Unlock releases the file lock.
func (fl *fileLock) Unlock() error {
	if fl.file != nil {
		fl.file.Close()
	}
	return os.Remove(fl.path)
}

// Atomic file operations

func writeAtomic(path string, content []byte) error {
	// Get current file permissions if file exists
	var perm os.FileMode = 0644
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode()
	}

	dir := filepath.Dir(path)
	// Use a pattern that clearly identifies it as a temp file
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	// Ensure cleanup on error
	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	// Set file permissions
	if err = f.Chmod(perm); err != nil {
		return err
	}

	// Write content
	if _, err = f.Write(content); err != nil {
		return err
	}

	// Sync to ensure data is on disk
	if err = f.Sync(); err != nil {
		return err
	}

	// Close before rename
	if err = f.Close(); err != nil {
		return err
	}

	// Atomic rename
	if err = os.Rename(f.Name(), path); err != nil {
		return err
	}

	success = true
	return nil
}
