package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"groundflow/internal/models"
	"groundflow/internal/util"
)

// MultiSink fans one audit record out to several sinks. The first failure
// wins; later sinks still run so a broken database does not lose the file
// trail.
type MultiSink []AuditSink

func (m MultiSink) Append(ctx context.Context, rec models.AuditRecord) error {
	var firstErr error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FileAuditSink appends audit records as JSON lines under
// root/<day>/audit.jsonl. Records are write-once; the sink never rewrites
// earlier lines.
type FileAuditSink struct {
	root string
	mu   sync.Mutex
}

func NewFileAuditSink(root string) *FileAuditSink {
	return &FileAuditSink{root: root}
}

func (s *FileAuditSink) Append(_ context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := rec.CreatedAt.UTC().Format("2006-01-02")
	if rec.CreatedAt.IsZero() {
		day = time.Now().UTC().Format("2006-01-02")
	}
	dir := filepath.Join(s.root, day)
	if err := util.EnsureDir(dir); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return f.Sync()
}
