package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/amanningeso/ngas/internal/domain/model"
)

// Volumes — операции каталога над томами хранения (таблица ngas_disks).
type Volumes interface {
	// Upsert создаёт или обновляет том (регистрация при старте).
	Upsert(ctx context.Context, v *model.Volume) error
	// Get возвращает том по идентификатору.
	Get(ctx context.Context, diskID string) (*model.Volume, error)
	// BestFit возвращает незаполненный том хоста с наибольшим доступным
	// местом. ErrNotFound — доступных томов нет.
	BestFit(ctx context.Context, hostID string) (*model.Volume, error)
	// List возвращает все тома хоста.
	List(ctx context.Context, hostID string) ([]*model.Volume, error)
	// AddFile учитывает новый файл: счётчик файлов, bytes_stored,
	// уменьшение available_mb.
	AddFile(ctx context.Context, diskID string, fileSize int64) error
	// MarkCompleted выставляет флаг заполненности тома.
	MarkCompleted(ctx context.Context, diskID string, when time.Time) error
}

const volumeCols = `disk_id, host_id, slot_id, mount_point, available_mb,
		bytes_stored, number_of_files, completed, completion_date`

// volumesRepo — pgx-реализация Volumes.
type volumesRepo struct {
	db DBTX
}

// NewVolumes создаёт репозиторий томов.
func NewVolumes(db DBTX) Volumes {
	return &volumesRepo{db: db}
}

func (r *volumesRepo) Upsert(ctx context.Context, v *model.Volume) error {
	query := `
		INSERT INTO ngas_disks (` + volumeCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (disk_id) DO UPDATE SET
			mount_point = EXCLUDED.mount_point,
			available_mb = EXCLUDED.available_mb`

	_, err := r.db.Exec(ctx, query,
		v.DiskID, v.HostID, v.SlotID, v.MountPoint, v.AvailableMB,
		v.BytesStored, v.NumberOfFiles, v.Completed, v.CompletionDate,
	)
	if err != nil {
		return fmt.Errorf("ошибка регистрации тома %s: %w", v.DiskID, err)
	}
	return nil
}

func (r *volumesRepo) Get(ctx context.Context, diskID string) (*model.Volume, error) {
	query := `SELECT ` + volumeCols + ` FROM ngas_disks WHERE disk_id = $1`
	return scanVolume(r.db.QueryRow(ctx, query, diskID))
}

func (r *volumesRepo) BestFit(ctx context.Context, hostID string) (*model.Volume, error) {
	query := `
		SELECT ` + volumeCols + `
		FROM ngas_disks
		WHERE completed = FALSE AND host_id = $1
		ORDER BY available_mb DESC, disk_id
		LIMIT 1`
	return scanVolume(r.db.QueryRow(ctx, query, hostID))
}

func (r *volumesRepo) List(ctx context.Context, hostID string) ([]*model.Volume, error) {
	query := `SELECT ` + volumeCols + ` FROM ngas_disks WHERE host_id = $1 ORDER BY disk_id`

	rows, err := r.db.Query(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка томов: %w", err)
	}
	defer rows.Close()

	var result []*model.Volume
	for rows.Next() {
		v, err := scanVolume(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *volumesRepo) AddFile(ctx context.Context, diskID string, fileSize int64) error {
	query := `
		UPDATE ngas_disks SET
			number_of_files = number_of_files + 1,
			bytes_stored = bytes_stored + $1,
			available_mb = GREATEST(available_mb - $1 / (1024 * 1024), 0)
		WHERE disk_id = $2`

	tag, err := r.db.Exec(ctx, query, fileSize, diskID)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчиков тома %s: %w", diskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *volumesRepo) MarkCompleted(ctx context.Context, diskID string, when time.Time) error {
	query := `
		UPDATE ngas_disks SET completed = TRUE, completion_date = $1
		WHERE disk_id = $2`

	tag, err := r.db.Exec(ctx, query, when, diskID)
	if err != nil {
		return fmt.Errorf("ошибка выставления флага completed тома %s: %w", diskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanVolume читает одну строку ngas_disks.
func scanVolume(row pgx.Row) (*model.Volume, error) {
	v := &model.Volume{}
	err := row.Scan(
		&v.DiskID, &v.HostID, &v.SlotID, &v.MountPoint, &v.AvailableMB,
		&v.BytesStored, &v.NumberOfFiles, &v.Completed, &v.CompletionDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения тома: %w", err)
	}
	return v, nil
}
