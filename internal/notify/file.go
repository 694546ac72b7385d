package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ChannelFile names the append-only log channel, which the router
// always delivers to.
const ChannelFile = "file"

const fileSeparatorWidth = 60

// FileChannel appends every notification to a plain-text log so
// nothing is lost when no other channel is reachable.
type FileChannel struct {
	path string
	mu   sync.Mutex
}

// NewFileChannel creates the channel; the file is created on first
// delivery.
func NewFileChannel(path string) *FileChannel {
	return &FileChannel{path: path}
}

func (c *FileChannel) Name() string     { return ChannelFile }
func (c *FileChannel) IsActive() bool   { return true }
func (c *FileChannel) IsExternal() bool { return false }

func (c *FileChannel) Deliver(ctx context.Context, n Notification) error {
	entry := fmt.Sprintf("[%s] [%s]\n%s\n%s\n\n",
		n.FiredAt.Format("2006-01-02 15:04:05"),
		n.JobName,
		n.Content,
		strings.Repeat("─", fileSeparatorWidth))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create notification dir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}
