package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// 审计日志轮转的默认策略，与 configs 中的示例保持一致。
const (
	defaultAuditMaxSizeMB  = 64
	defaultAuditMaxBackups = 5
	defaultAuditMaxAgeDays = 30

	backupTimeLayout = "20060102T150405.000"
)

// rotatingWriter 是审计日志专用的按大小轮转写入器。写满的文件以 UTC
// 时间戳后缀归档，历史文件按数量与保存期限清理；后缀不匹配的文件不动。
type rotatingWriter struct {
	mu sync.Mutex

	path       string
	maxBytes   int64
	maxBackups int
	maxAge     time.Duration

	file *os.File
	size int64
}

func newRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotatingWriter, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultAuditMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultAuditMaxBackups
	}
	if maxAgeDays <= 0 {
		maxAgeDays = defaultAuditMaxAgeDays
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &rotatingWriter{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return err
}

// open 打开（或复用）当前审计文件并记录其大小，轮转判断据此进行。
func (w *rotatingWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// rotate 将当前文件归档为带时间戳的历史文件并重新开始写入。
func (w *rotatingWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.size = 0

	if _, err := os.Stat(w.path); err == nil {
		backup := fmt.Sprintf("%s.%s", w.path, time.Now().UTC().Format(backupTimeLayout))
		if err := os.Rename(w.path, backup); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}
	w.prune()
	return w.open()
}

// prune 清理过期与超量的历史文件。时间戳后缀按字典序即按时间排序。
func (w *rotatingWriter) prune() {
	candidates, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-w.maxAge)
	backups := candidates[:0]
	for _, backup := range candidates {
		suffix := strings.TrimPrefix(backup, w.path+".")
		if _, parseErr := time.Parse(backupTimeLayout, suffix); parseErr != nil {
			continue
		}
		if w.maxAge > 0 {
			if info, statErr := os.Stat(backup); statErr == nil && info.ModTime().Before(cutoff) {
				_ = os.Remove(backup)
				continue
			}
		}
		backups = append(backups, backup)
	}
	if w.maxBackups > 0 && len(backups) > w.maxBackups {
		sort.Strings(backups)
		for _, backup := range backups[:len(backups)-w.maxBackups] {
			_ = os.Remove(backup)
		}
	}
}
