// Package watcher imports files dropped into intake folders and archives them.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/bsvalues/PACS-DataBridge/internal/config"
	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// LockFileName is created in each intake folder while a pass runs.
const LockFileName = ".databridge.lock"

// Errors returned by the watcher.
var (
	ErrNoFolders = errors.New("no intake folders configured")
	ErrNoArchive = errors.New("archive folder is required")
)

// Importer runs one import to completion.
type Importer interface {
	Import(ctx context.Context, importType models.ImportType, uri string) (*models.ImportJob, error)
}

// Folder is one intake folder and the import type of files placed there.
type Folder struct {
	Path       string
	ImportType models.ImportType
}

// Result is the outcome for one intake file.
type Result struct {
	Job      *models.ImportJob
	Err      error
	Path     string
	Archived string
}

// Report summarizes one pass.
type Report struct {
	Imported []Result
	Failed   []Result
	// Locked lists folders another process was already scanning.
	Locked []string
}

// Watcher scans intake folders once per Scan call.
type Watcher struct {
	importer Importer
	log      *logger.Logger
	now      func() time.Time
	archive  string
	folders  []Folder
}

// New builds a Watcher from the watch configuration. Folders left empty in
// cfg are not scanned.
func New(cfg config.WatchConfig, importer Importer, log *logger.Logger) (*Watcher, error) {
	var folders []Folder
	if cfg.PermitFolder != "" {
		folders = append(folders, Folder{Path: cfg.PermitFolder, ImportType: models.ImportTypePermit})
	}
	if cfg.PropertyFolder != "" {
		folders = append(folders, Folder{Path: cfg.PropertyFolder, ImportType: models.ImportTypePersonalProperty})
	}
	if len(folders) == 0 {
		return nil, ErrNoFolders
	}
	if cfg.ArchiveFolder == "" {
		return nil, ErrNoArchive
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{
		importer: importer,
		log:      log,
		now:      time.Now,
		archive:  cfg.ArchiveFolder,
		folders:  folders,
	}, nil
}

// Folders returns the folders scanned by each pass.
func (w *Watcher) Folders() []Folder {
	return w.folders
}

// Scan makes one pass over every folder. A folder whose lock is held by
// another process is skipped and listed in Report.Locked. Files that could
// not be imported stay in place for the next pass; every file that produced a
// job, whatever its final status, moves to the archive.
func (w *Watcher) Scan(ctx context.Context) (Report, error) {
	var report Report
	for _, folder := range w.folders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := w.scanFolder(ctx, folder, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (w *Watcher) scanFolder(ctx context.Context, folder Folder, report *Report) error {
	lock := flock.New(filepath.Join(folder.Path, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", folder.Path, err)
	}
	if !ok {
		w.log.Warn("Intake folder is locked by another process", map[string]interface{}{
			"folder": folder.Path,
		})
		report.Locked = append(report.Locked, folder.Path)
		return nil
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			w.log.Warn("Failed to release intake lock", map[string]interface{}{
				"folder": folder.Path,
				"error":  err.Error(),
			})
		}
	}()

	files, err := intakeFiles(folder.Path)
	if err != nil {
		return err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := w.importFile(ctx, folder, path)
		if res.Err != nil {
			report.Failed = append(report.Failed, res)
			continue
		}
		report.Imported = append(report.Imported, res)
	}
	return nil
}

func (w *Watcher) importFile(ctx context.Context, folder Folder, path string) Result {
	res := Result{Path: path}
	log := w.log.With(map[string]interface{}{
		"file":        path,
		"import_type": string(folder.ImportType),
	})

	job, err := w.importer.Import(ctx, folder.ImportType, path)
	if job == nil {
		if err == nil {
			err = errors.New("import returned no job")
		}
		log.Error("Intake file was not imported", err, nil)
		res.Err = err
		return res
	}
	res.Job = job
	if err != nil {
		log.Warn("Intake job ended with a fault", map[string]interface{}{
			"job_id": job.ID.String(),
			"error":  err.Error(),
		})
	}

	archived, moveErr := w.archiveFile(folder, path)
	if moveErr != nil {
		log.Error("Failed to archive intake file", moveErr, map[string]interface{}{
			"job_id": job.ID.String(),
		})
		res.Err = moveErr
		return res
	}
	res.Archived = archived

	log.Info("Intake file imported", map[string]interface{}{
		"job_id":   job.ID.String(),
		"status":   string(job.Status),
		"archived": archived,
	})
	return res
}

// archiveFile moves path to <archive>/<import type>/<timestamp>_<name>.
func (w *Watcher) archiveFile(folder Folder, path string) (string, error) {
	dir := filepath.Join(w.archive, string(folder.ImportType))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive folder: %w", err)
	}
	dest := filepath.Join(dir, w.now().UTC().Format("20060102T150405")+"_"+filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("archive target %s already exists", dest)
	}
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s to archive: %w", path, err)
	}
	return dest, nil
}

// intakeFiles lists the csv and txt files in dir by name. Hidden files and
// subdirectories are ignored.
func intakeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read intake folder %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv", ".txt":
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}
