package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ContainerRow — строка таблицы ngas_containers.
type ContainerRow struct {
	ContainerID   string
	Name          string
	ParentID      *string
	Size          int64
	IngestionDate time.Time
}

// Containers — операции каталога над контейнерами.
// Идентификатор выдаётся каталогом в момент персистенции.
type Containers interface {
	// Create персистирует контейнер и возвращает выданный идентификатор.
	// parentID — идентификатор уже персистированного родителя (nil у корня).
	Create(ctx context.Context, name string, parentID *string, size int64, ingestionDate time.Time) (string, error)
	// AddFile персистирует членство версии файла в контейнере.
	AddFile(ctx context.Context, containerID, fileID string, fileVersion int) error
	// SetSize записывает агрегированный размер контейнера.
	SetSize(ctx context.Context, containerID string, size int64) error
	// Get возвращает контейнер по идентификатору.
	Get(ctx context.Context, containerID string) (*ContainerRow, error)
}

// containersRepo — pgx-реализация Containers.
type containersRepo struct {
	db DBTX
}

// NewContainers создаёт репозиторий контейнеров.
func NewContainers(db DBTX) Containers {
	return &containersRepo{db: db}
}

func (r *containersRepo) Create(ctx context.Context, name string, parentID *string, size int64, ingestionDate time.Time) (string, error) {
	containerID := uuid.New().String()
	query := `
		INSERT INTO ngas_containers (container_id, container_name, parent_container_id,
			container_size, ingestion_date)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, containerID, name, parentID, size, ingestionDate)
	if err != nil {
		return "", fmt.Errorf("ошибка создания контейнера %q: %w", name, err)
	}
	return containerID, nil
}

func (r *containersRepo) AddFile(ctx context.Context, containerID, fileID string, fileVersion int) error {
	query := `
		INSERT INTO ngas_container_files (container_id, file_id, file_version)
		VALUES ($1, $2, $3)`

	_, err := r.db.Exec(ctx, query, containerID, fileID, fileVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s v%d уже входит в контейнер", ErrConflict, fileID, fileVersion)
		}
		return fmt.Errorf("ошибка добавления файла %s в контейнер %s: %w", fileID, containerID, err)
	}
	return nil
}

func (r *containersRepo) SetSize(ctx context.Context, containerID string, size int64) error {
	query := `UPDATE ngas_containers SET container_size = $1 WHERE container_id = $2`

	tag, err := r.db.Exec(ctx, query, size, containerID)
	if err != nil {
		return fmt.Errorf("ошибка записи размера контейнера %s: %w", containerID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *containersRepo) Get(ctx context.Context, containerID string) (*ContainerRow, error) {
	query := `
		SELECT container_id, container_name, parent_container_id, container_size, ingestion_date
		FROM ngas_containers
		WHERE container_id = $1`

	c := &ContainerRow{}
	err := r.db.QueryRow(ctx, query, containerID).Scan(
		&c.ContainerID, &c.Name, &c.ParentID, &c.Size, &c.IngestionDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения контейнера: %w", err)
	}
	return c, nil
}
