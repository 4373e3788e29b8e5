package ota

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// CodeApplier applies planned CodeChanges to the workspace, backing up the
// target file before every write and supporting per-change or bulk rollback.
type CodeApplier struct {
	workspaceRoot string
	backupDir     string
	dryRun        bool
	logger        *zap.Logger

	mu      sync.Mutex
	applied []entity.ApplyResult
}

// NewCodeApplier creates a CodeApplier rooted at workspaceRoot, backing up
// files under <workspaceRoot>/.ota/code_backups.
func NewCodeApplier(workspaceRoot string, logger *zap.Logger) *CodeApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeApplier{
		workspaceRoot: workspaceRoot,
		backupDir:     filepath.Join(workspaceRoot, ".ota", "code_backups"),
		logger:        logger,
	}
}

// WithDryRun returns a copy of the applier that validates changes without
// ever writing to disk.
func (a *CodeApplier) WithDryRun(dryRun bool) *CodeApplier {
	clone := *a
	clone.applied = nil
	clone.dryRun = dryRun
	return &clone
}

// WorkspaceRoot returns the applier's workspace root.
func (a *CodeApplier) WorkspaceRoot() string { return a.workspaceRoot }

// BackupDir returns the directory backups are written to.
func (a *CodeApplier) BackupDir() string { return a.backupDir }

// IsDryRun reports whether this applier skips writes.
func (a *CodeApplier) IsDryRun() bool { return a.dryRun }

// ValidateChange checks that change carries the fields its Kind requires and,
// for Replace/Delete, that SearchPattern actually occurs in the target file.
func (a *CodeApplier) ValidateChange(change *entity.CodeChange) error {
	switch change.Kind {
	case entity.ChangeInsert:
		if change.NewContent == "" {
			return fmt.Errorf("insert change requires new_content")
		}
	case entity.ChangeReplace:
		if change.SearchPattern == "" {
			return fmt.Errorf("replace change requires search_pattern")
		}
		if change.NewContent == "" {
			return fmt.Errorf("replace change requires new_content")
		}
	case entity.ChangeDelete:
		if change.SearchPattern == "" {
			return fmt.Errorf("delete change requires search_pattern")
		}
	case entity.ChangeAppend:
		if change.NewContent == "" {
			return fmt.Errorf("append change requires new_content")
		}
	default:
		return fmt.Errorf("unknown change kind: %s", change.Kind)
	}

	target := filepath.Join(a.workspaceRoot, change.TargetFile)
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("target file does not exist: %s", target)
	}

	if change.SearchPattern != "" {
		content, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("failed to read target file for validation: %w", err)
		}
		if !strings.Contains(string(content), change.SearchPattern) {
			pattern := change.SearchPattern
			if len(pattern) > 50 {
				pattern = pattern[:50] + "..."
			}
			return fmt.Errorf("search pattern not found in %s: %q", change.TargetFile, pattern)
		}
	}
	return nil
}

// Apply validates, backs up, and writes change. A failed validation or write
// is reported in the returned ApplyResult rather than as an error; only
// infrastructure failures (e.g. backup directory creation) return err.
func (a *CodeApplier) Apply(change *entity.CodeChange) (*entity.ApplyResult, error) {
	if err := a.ValidateChange(change); err != nil {
		return a.record(failureResult(change.ID, err.Error())), nil
	}

	if a.dryRun {
		a.logger.Info("dry run: would apply change", zap.String("change_id", change.ID), zap.String("target", change.TargetFile), zap.String("kind", string(change.Kind)))
		return a.record(entity.ApplyResult{ChangeID: change.ID, Success: true, AppliedAt: time.Now()}), nil
	}

	target := filepath.Join(a.workspaceRoot, change.TargetFile)
	backupPath, err := a.createBackup(target, change.ID)
	if err != nil {
		a.logger.Error("failed to create backup", zap.String("change_id", change.ID), zap.Error(err))
		return a.record(failureResult(change.ID, fmt.Sprintf("backup failed: %v", err))), nil
	}

	if err := a.applyToFile(target, change); err != nil {
		a.logger.Warn("failed to apply change, restoring backup", zap.String("change_id", change.ID), zap.Error(err))
		if restoreErr := copyFile(backupPath, target); restoreErr != nil {
			a.logger.Error("failed to restore backup after failed apply", zap.Error(restoreErr))
		}
		return a.record(failureResult(change.ID, fmt.Sprintf("apply failed: %v", err))), nil
	}

	a.logger.Info("applied code change", zap.String("change_id", change.ID), zap.String("target", change.TargetFile), zap.String("kind", string(change.Kind)))
	path := backupPath
	return a.record(entity.ApplyResult{ChangeID: change.ID, Success: true, BackupPath: &path, AppliedAt: time.Now()}), nil
}

func failureResult(changeID, message string) entity.ApplyResult {
	return entity.ApplyResult{ChangeID: changeID, Success: false, ErrorMessage: &message, AppliedAt: time.Now()}
}

func (a *CodeApplier) record(result entity.ApplyResult) *entity.ApplyResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, result)
	return &a.applied[len(a.applied)-1]
}

// RollbackChange restores the single backup recorded for changeID, returning
// whether a restorable backup was found.
func (a *CodeApplier) RollbackChange(changeID string) (bool, error) {
	a.mu.Lock()
	var target *entity.ApplyResult
	for i := range a.applied {
		if a.applied[i].ChangeID == changeID && a.applied[i].Success {
			target = &a.applied[i]
			break
		}
	}
	a.mu.Unlock()

	if target == nil || target.BackupPath == nil {
		a.logger.Warn("no backup file found for rollback", zap.String("change_id", changeID))
		return false, nil
	}
	if _, err := os.Stat(*target.BackupPath); err != nil {
		return false, nil
	}

	originalPath := strings.TrimSuffix(*target.BackupPath, filepath.Ext(*target.BackupPath))
	if err := copyFile(*target.BackupPath, originalPath); err != nil {
		return false, fmt.Errorf("ota: restore backup: %w", err)
	}
	a.logger.Info("rolled back change from backup", zap.String("change_id", changeID))
	return true, nil
}

// RollbackAll restores every successfully applied change in reverse order,
// returning the count restored.
func (a *CodeApplier) RollbackAll() (int, error) {
	a.mu.Lock()
	var changeIDs []string
	for i := len(a.applied) - 1; i >= 0; i-- {
		if a.applied[i].Success {
			changeIDs = append(changeIDs, a.applied[i].ChangeID)
		}
	}
	a.mu.Unlock()

	rolledBack := 0
	for _, id := range changeIDs {
		ok, err := a.RollbackChange(id)
		if err != nil {
			a.logger.Error("error during rollback", zap.String("change_id", id), zap.Error(err))
			continue
		}
		if ok {
			rolledBack++
		} else {
			a.logger.Warn("could not rollback change", zap.String("change_id", id))
		}
	}
	a.logger.Info("rollback all completed", zap.Int("rolled_back", rolledBack), zap.Int("total", len(changeIDs)))
	return rolledBack, nil
}

// History returns every ApplyResult recorded by this applier.
func (a *CodeApplier) History() []entity.ApplyResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]entity.ApplyResult, len(a.applied))
	copy(out, a.applied)
	return out
}

func (a *CodeApplier) createBackup(target, changeID string) (string, error) {
	if err := os.MkdirAll(a.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	backupPath := filepath.Join(a.backupDir, changeID+".bak")
	if err := copyFile(target, backupPath); err != nil {
		return "", fmt.Errorf("copy to backup: %w", err)
	}
	return backupPath, nil
}

func (a *CodeApplier) applyToFile(target string, change *entity.CodeChange) error {
	content, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("read target file: %w", err)
	}

	var newContent string
	switch change.Kind {
	case entity.ChangeInsert:
		lines := strings.Split(string(content), "\n")
		insertAt := change.LineNumber
		if insertAt > len(lines) {
			insertAt = len(lines)
		}
		if insertAt < 0 {
			insertAt = 0
		}
		lines = append(lines[:insertAt], append([]string{change.NewContent}, lines[insertAt:]...)...)
		newContent = strings.Join(lines, "\n")
	case entity.ChangeReplace:
		if !strings.Contains(string(content), change.SearchPattern) {
			return fmt.Errorf("search pattern not found")
		}
		newContent = strings.Replace(string(content), change.SearchPattern, change.NewContent, 1)
	case entity.ChangeDelete:
		if !strings.Contains(string(content), change.SearchPattern) {
			return fmt.Errorf("search pattern not found")
		}
		newContent = strings.Replace(string(content), change.SearchPattern, "", 1)
	case entity.ChangeAppend:
		base := string(content)
		if base != "" && !strings.HasSuffix(base, "\n") {
			base += "\n"
		}
		newContent = base + change.NewContent + "\n"
	default:
		return fmt.Errorf("unknown change kind: %s", change.Kind)
	}

	return os.WriteFile(target, []byte(newContent), 0o644)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
