package mockserver

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// Store persists the mock checkpoint graph in SQLite: threads, and one row
// per (branch, position) message with its checkpoint links. Forking a
// branch copies the shared prefix, so each branch reads back as a plain
// ordered sequence.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) the store at the given DSN.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			thread_id TEXT PRIMARY KEY,
			assistant_id TEXT NOT NULL,
			title TEXT,
			active_branch TEXT NOT NULL DEFAULT 'main',
			branch_seq INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			thread_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			position INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_call_id TEXT,
			checkpoint TEXT NOT NULL,
			parent_checkpoint TEXT,
			PRIMARY KEY (thread_id, branch, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(thread_id, parent_checkpoint)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// CreateThread inserts a thread if it does not exist yet.
func (s *Store) CreateThread(threadID, assistantID string) error {
	_, err := s.db.Exec(
		`INSERT INTO threads (thread_id, assistant_id) VALUES (?, ?)
		 ON CONFLICT(thread_id) DO NOTHING`,
		threadID, assistantID)
	return err
}

// GetThread returns a thread's assistant id and active branch.
func (s *Store) GetThread(threadID string) (assistantID, activeBranch string, err error) {
	row := s.db.QueryRow(`SELECT assistant_id, active_branch FROM threads WHERE thread_id = ?`, threadID)
	if err := row.Scan(&assistantID, &activeBranch); err != nil {
		return "", "", err
	}
	return assistantID, activeBranch, nil
}

// ListThreads lists threads sorted by the given column and order.
func (s *Store) ListThreads(limit int, sortBy, sortOrder string) ([]domain.ThreadInfo, error) {
	col := "updated_at"
	if sortBy == "created_at" || sortBy == "title" {
		col = sortBy
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT thread_id, assistant_id, COALESCE(title, ''), updated_at FROM threads ORDER BY `+col+` `+dir+` LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []domain.ThreadInfo
	for rows.Next() {
		var t domain.ThreadInfo
		if err := rows.Scan(&t.ThreadID, &t.AssistantID, &t.Title, &t.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(threadID string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM threads WHERE thread_id = ?`, threadID)
	return err
}

// SetActiveBranch switches the thread's active branch.
func (s *Store) SetActiveBranch(threadID, branch string) error {
	res, err := s.db.Exec(`UPDATE threads SET active_branch = ?, updated_at = ? WHERE thread_id = ?`,
		branch, time.Now(), threadID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// NextBranchName mints a fresh branch name for the thread.
func (s *Store) NextBranchName(threadID string) (string, error) {
	var seq int
	err := s.db.QueryRow(
		`UPDATE threads SET branch_seq = branch_seq + 1 WHERE thread_id = ? RETURNING branch_seq`,
		threadID).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("branch-%d", seq), nil
}

// storedMessage is one message row with its checkpoint links.
type storedMessage struct {
	Message          domain.Message
	Branch           string
	Position         int
	Checkpoint       domain.CheckpointRef
	ParentCheckpoint domain.CheckpointRef
}

// BranchMessages returns the ordered messages of one branch.
func (s *Store) BranchMessages(threadID, branch string) ([]storedMessage, error) {
	rows, err := s.db.Query(
		`SELECT position, message_id, role, content, COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''),
		        checkpoint, COALESCE(parent_checkpoint, '')
		 FROM messages WHERE thread_id = ? AND branch = ? ORDER BY position`, threadID, branch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedMessage
	for rows.Next() {
		var sm storedMessage
		var content, toolCalls, toolCallID, checkpoint, parent string
		if err := rows.Scan(&sm.Position, &sm.Message.ID, &sm.Message.Role, &content, &toolCalls,
			&toolCallID, &checkpoint, &parent); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &sm.Message.Content); err != nil {
			return nil, fmt.Errorf("corrupt content for message %s: %w", sm.Message.ID, err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &sm.Message.ToolCalls); err != nil {
				return nil, fmt.Errorf("corrupt tool calls for message %s: %w", sm.Message.ID, err)
			}
		}
		sm.Message.ToolCallID = toolCallID
		sm.Branch = branch
		sm.Checkpoint = domain.CheckpointRef(checkpoint)
		sm.ParentCheckpoint = domain.CheckpointRef(parent)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// AppendMessage appends one message row at the tail of a branch.
func (s *Store) AppendMessage(threadID string, sm storedMessage) error {
	content, err := json.Marshal(sm.Message.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	var toolCalls any
	if len(sm.Message.ToolCalls) > 0 {
		data, err := json.Marshal(sm.Message.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}
	_, err = s.db.Exec(
		`INSERT INTO messages (thread_id, branch, position, message_id, role, content, tool_calls, tool_call_id, checkpoint, parent_checkpoint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id, branch, position) DO UPDATE SET
		   message_id = excluded.message_id, role = excluded.role, content = excluded.content,
		   tool_calls = excluded.tool_calls, tool_call_id = excluded.tool_call_id,
		   checkpoint = excluded.checkpoint, parent_checkpoint = excluded.parent_checkpoint`,
		threadID, sm.Branch, sm.Position, sm.Message.ID, string(sm.Message.Role), string(content),
		toolCalls, sm.Message.ToolCallID, string(sm.Checkpoint), string(sm.ParentCheckpoint))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE threads SET updated_at = ?, title = COALESCE(title, ?) WHERE thread_id = ?`,
		time.Now(), sm.Message.Text(), threadID)
	return err
}

// ForkBranch copies every message of src up to (not including) the one
// whose parent is forkParent into a new branch. The diverging turn is then
// appended by the run.
func (s *Store) ForkBranch(threadID, src, dst string, forkParent domain.CheckpointRef) error {
	msgs, err := s.BranchMessages(threadID, src)
	if err != nil {
		return err
	}
	for _, sm := range msgs {
		if sm.ParentCheckpoint == forkParent {
			break
		}
		sm.Branch = dst
		if err := s.AppendMessage(threadID, sm); err != nil {
			return err
		}
	}
	return nil
}

// SiblingBranches returns, for a message row, one branch per distinct
// checkpoint sharing the same parent. Copies of the same checkpoint on
// other branches are the same message, not siblings.
func (s *Store) SiblingBranches(threadID string, sm storedMessage) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT branch, checkpoint FROM messages
		 WHERE thread_id = ? AND COALESCE(parent_checkpoint, '') = ?
		 ORDER BY branch`, threadID, string(sm.ParentCheckpoint))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[domain.CheckpointRef]string{sm.Checkpoint: sm.Branch}
	for rows.Next() {
		var branch, checkpoint string
		if err := rows.Scan(&branch, &checkpoint); err != nil {
			return nil, err
		}
		ref := domain.CheckpointRef(checkpoint)
		if _, ok := seen[ref]; !ok {
			seen[ref] = branch
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	options := make([]string, 0, len(seen))
	for _, branch := range seen {
		options = append(options, branch)
	}
	sort.Slice(options, func(i, j int) bool { return branchLess(options[i], options[j]) })
	return options, nil
}

// branchLess orders the default branch first, then shorter names before
// longer ones so branch-10 sorts after branch-2, then lexicographically.
func branchLess(a, b string) bool {
	if a == domain.DefaultBranch || b == domain.DefaultBranch {
		return a == domain.DefaultBranch && b != domain.DefaultBranch
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
