// Package reliability holds the backup pipeline: checkpoint the
// database, archive it with a checksum manifest and ship the archive to
// S3-compatible storage.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/database"
)

const backupPrefix = "bastion-backup-"

// BackupService creates and uploads database backups.
type BackupService struct {
	db      *database.DB
	client  *S3Client
	dataDir string
	retain  int
	log     zerolog.Logger
}

// BackupMetadata is the manifest written into every archive.
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// BackupInfo describes a stored backup.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewBackupService creates a backup service retaining the given number
// of archives remotely.
func NewBackupService(db *database.DB, client *S3Client, dataDir string, retain int, log zerolog.Logger) *BackupService {
	if retain <= 0 {
		retain = 14
	}
	return &BackupService{
		db:      db,
		client:  client,
		dataDir: dataDir,
		retain:  retain,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// Run performs one full backup cycle: checkpoint, archive, upload,
// prune. Suitable as a cron job body.
func (s *BackupService) Run(ctx context.Context) error {
	started := time.Now()
	s.log.Info().Msg("starting backup")

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	// Flush the WAL so the copied file is a complete snapshot.
	if err := s.db.Checkpoint(); err != nil {
		return fmt.Errorf("failed to checkpoint database: %w", err)
	}

	dbCopy := filepath.Join(stagingDir, s.db.Name()+".db")
	if err := copyFile(s.db.Path(), dbCopy); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	info, err := os.Stat(dbCopy)
	if err != nil {
		return fmt.Errorf("failed to stat database copy: %w", err)
	}
	checksum, err := fileChecksum(dbCopy)
	if err != nil {
		return fmt.Errorf("failed to checksum database copy: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Database:  s.db.Name(),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}
	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := fmt.Sprintf("%s%s.tar.gz", backupPrefix, time.Now().Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, []string{dbCopy, metadataPath}); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.client.Upload(ctx, archiveName, archive); err != nil {
		return err
	}

	if err := s.Prune(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to prune old backups")
	}

	s.log.Info().
		Dur("duration", time.Since(started)).
		Str("archive", archiveName).
		Msg("backup completed")
	return nil
}

// ListBackups lists stored backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.client.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		out = append(out, BackupInfo{
			Filename:  obj.Key,
			Timestamp: obj.LastModified,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(obj.LastModified).Hours()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Prune deletes stored backups beyond the retention count.
func (s *BackupService) Prune(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= s.retain {
		return nil
	}
	for _, old := range backups[s.retain:] {
		if err := s.client.Delete(ctx, old.Filename); err != nil {
			return err
		}
		s.log.Info().Str("key", old.Filename).Msg("old backup deleted")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	payload, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, file := range files {
		// The archive itself lives in the same staging directory.
		if strings.HasSuffix(file, ".tar.gz") {
			continue
		}
		if err := addFile(tw, file); err != nil {
			return err
		}
	}
	return nil
}

func addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
