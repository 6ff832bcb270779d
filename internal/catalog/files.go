package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/amanningeso/ngas/internal/domain/model"
)

// Files — операции каталога над записями файлов (таблица ngas_files).
// Запись создаётся один раз (append-only), мутация не предусмотрена.
type Files interface {
	// Insert создаёт запись файла. ErrConflict при существующей паре
	// (file_id, file_version).
	Insert(ctx context.Context, f *model.FileRecord) error
	// Get возвращает запись по паре (file_id, file_version).
	Get(ctx context.Context, fileID string, fileVersion int) (*model.FileRecord, error)
	// NextVersion возвращает следующую версию логического файла
	// (1, если файла в каталоге ещё нет).
	NextVersion(ctx context.Context, fileID string) (int, error)
}

// filesRepo — pgx-реализация Files.
type filesRepo struct {
	db DBTX
}

// NewFiles создаёт репозиторий файловых записей.
func NewFiles(db DBTX) Files {
	return &filesRepo{db: db}
}

func (r *filesRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO ngas_files (disk_id, file_name, file_id, file_version, format,
			file_size, uncompressed_file_size, compression, ingestion_date,
			checksum, checksum_plugin, file_status, creation_date, io_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(ctx, query,
		f.DiskID, f.FileName, f.FileID, f.FileVersion, f.Format,
		f.FileSize, f.UncompressedFileSize, f.Compression, f.IngestionDate,
		f.Checksum, f.ChecksumPlugin, f.FileStatus, f.CreationDate,
		f.IoTime.Milliseconds(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s версии %d уже зарегистрирован", ErrConflict, f.FileID, f.FileVersion)
		}
		return fmt.Errorf("ошибка регистрации файла %s: %w", f.FileID, err)
	}
	return nil
}

func (r *filesRepo) Get(ctx context.Context, fileID string, fileVersion int) (*model.FileRecord, error) {
	query := `
		SELECT disk_id, file_name, file_id, file_version, format,
			file_size, uncompressed_file_size, compression, ingestion_date,
			checksum, checksum_plugin, file_status, creation_date, io_time_ms
		FROM ngas_files
		WHERE file_id = $1 AND file_version = $2`

	f := &model.FileRecord{}
	var ioTimeMs int64
	err := r.db.QueryRow(ctx, query, fileID, fileVersion).Scan(
		&f.DiskID, &f.FileName, &f.FileID, &f.FileVersion, &f.Format,
		&f.FileSize, &f.UncompressedFileSize, &f.Compression, &f.IngestionDate,
		&f.Checksum, &f.ChecksumPlugin, &f.FileStatus, &f.CreationDate, &ioTimeMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	f.IoTime = millisToDuration(ioTimeMs)
	return f, nil
}

func (r *filesRepo) NextVersion(ctx context.Context, fileID string) (int, error) {
	query := `SELECT COALESCE(MAX(file_version), 0) + 1 FROM ngas_files WHERE file_id = $1`

	var version int
	if err := r.db.QueryRow(ctx, query, fileID).Scan(&version); err != nil {
		return 0, fmt.Errorf("ошибка определения версии файла %s: %w", fileID, err)
	}
	return version, nil
}

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
