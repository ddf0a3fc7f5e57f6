package statestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileConfig holds configuration options for the file-backed store.
type FileConfig struct {
	FilePath         string
	AutoSaveInterval time.Duration
	BackupCount      int // Number of backup files to keep
}

// DefaultFileConfig returns a default configuration.
func DefaultFileConfig(filePath string) FileConfig {
	return FileConfig{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
		BackupCount:      3,
	}
}

// File keeps every document in memory and flushes the whole set to a single
// JSON file periodically and on Close.
type File struct {
	mu           sync.RWMutex
	data         map[string]json.RawMessage
	cfg          FileConfig
	log          zerolog.Logger
	saveMu       sync.Mutex
	lastChecksum string

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// OpenFile loads or creates the state file and starts the auto-save loop.
func OpenFile(cfg FileConfig, log zerolog.Logger) (*File, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = 10 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &File{
		data:   make(map[string]json.RawMessage),
		cfg:    cfg,
		log:    log.With().Str("component", "statestore").Str("path", cfg.FilePath).Logger(),
		cancel: cancel,
	}

	if _, err := os.Stat(cfg.FilePath); os.IsNotExist(err) {
		if err := f.writeFileAtomic([]byte("{}")); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create empty JSON file: %w", err)
		}
	} else if err == nil {
		if err := f.loadFromFile(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to load data from file: %w", err)
		}
	} else {
		cancel()
		return nil, fmt.Errorf("failed to check file existence: %w", err)
	}

	f.wg.Add(1)
	go f.autoSave(ctx)

	return f, nil
}

func (f *File) isClosed() bool {
	f.closeMu.RLock()
	defer f.closeMu.RUnlock()
	return f.closed
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.isClosed() {
		return nil, false, ErrClosed
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stores value in memory. It reaches disk on the next auto-save tick.
func (f *File) Put(_ context.Context, key string, value []byte) error {
	if f.isClosed() {
		return ErrClosed
	}
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	if f.isClosed() {
		return ErrClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// Flush forces an immediate save to disk.
func (f *File) Flush() error {
	if f.isClosed() {
		return ErrClosed
	}
	return f.saveToFile()
}

// Close stops the auto-save loop and performs a final save.
func (f *File) Close() error {
	f.closeMu.Lock()
	if f.closed {
		f.closeMu.Unlock()
		return nil
	}
	f.closed = true
	f.closeMu.Unlock()

	f.cancel()
	f.wg.Wait()
	return f.saveToFile()
}

// saveToFile writes with backup, atomic rename and checksum verification.
// Unchanged content is skipped.
func (f *File) saveToFile() error {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	f.mu.RLock()
	data, err := json.MarshalIndent(f.data, "", "  ")
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	checksum := checksumOf(data)
	if checksum == f.lastChecksum {
		return nil
	}

	if f.cfg.BackupCount > 0 {
		if err := f.createBackup(); err != nil {
			f.log.Warn().Err(err).Msg("failed to create backup")
		}
	}

	if err := f.writeFileAtomic(data); err != nil {
		return err
	}
	if err := f.verifyFile(checksum); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}

	f.lastChecksum = checksum
	f.log.Debug().Str("action", "flush").Int("bytes", len(data)).Msg("state saved")
	return nil
}

func (f *File) loadFromFile() error {
	data, err := os.ReadFile(f.cfg.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var temp map[string]json.RawMessage
	if err := json.Unmarshal(data, &temp); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	if temp == nil {
		temp = make(map[string]json.RawMessage)
	}

	f.mu.Lock()
	f.data = temp
	f.mu.Unlock()
	f.lastChecksum = checksumOf(data)
	return nil
}

// writeFileAtomic writes to a temporary file, syncs it and renames it over
// the target.
func (f *File) writeFileAtomic(data []byte) error {
	tmpFile := f.cfg.FilePath + ".tmp"

	file, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	file.Close()

	if err := os.Rename(tmpFile, f.cfg.FilePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (f *File) verifyFile(expected string) error {
	actual, err := os.ReadFile(f.cfg.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read file for verification: %w", err)
	}
	if checksumOf(actual) != expected {
		return fmt.Errorf("file checksum mismatch")
	}
	return nil
}

func (f *File) createBackup() error {
	if _, err := os.Stat(f.cfg.FilePath); os.IsNotExist(err) {
		return nil
	}

	backupFile := fmt.Sprintf("%s.backup.%s", f.cfg.FilePath, time.Now().Format("20060102_150405.000"))

	src, err := os.Open(f.cfg.FilePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(backupFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	f.cleanupOldBackups()
	return nil
}

// cleanupOldBackups removes the oldest backups beyond the configured limit.
func (f *File) cleanupOldBackups() {
	matches, err := filepath.Glob(f.cfg.FilePath + ".backup.*")
	if err != nil || len(matches) <= f.cfg.BackupCount {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			files = append(files, fileInfo{m, info.ModTime()})
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	for i := 0; i < len(files)-f.cfg.BackupCount; i++ {
		os.Remove(files[i].path)
	}
}

func (f *File) autoSave(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.saveToFile(); err != nil {
				f.log.Error().Err(err).Msg("auto-save failed")
			}
		}
	}
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
