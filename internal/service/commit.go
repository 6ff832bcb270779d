// commit.go — коммит метаданных: перенос staging-файлов в конечное
// расположение, запись FileRecord, членство в контейнерах, агрегация
// размеров контейнеров и учёт тома.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/domain/model"
	"github.com/amanningeso/ngas/internal/storage/checksum"
)

// Committer — единственный создатель записей файлов в каталоге.
// Записи append-only: однажды закоммиченная запись не мутируется.
type Committer struct {
	files      catalog.Files
	containers catalog.Containers
	volumes    catalog.Volumes
	logger     *slog.Logger
}

// NewCommitter создаёт коммитер метаданных.
func NewCommitter(files catalog.Files, containers catalog.Containers, volumes catalog.Volumes, logger *slog.Logger) *Committer {
	return &Committer{
		files:      files,
		containers: containers,
		volumes:    volumes,
		logger:     logger.With(slog.String("component", "committer")),
	}
}

// CommitParams — параметры коммита партии staged-файлов одного запроса.
type CommitParams struct {
	// Volume — целевой том
	Volume *model.Volume
	// Files — staged-файлы в порядке появления в запросе
	Files []model.StagedFile
	// Format — MIME-тип содержимого
	Format string
	// FileID — переопределение логического идентификатора
	// (применимо только к одиночному файлу)
	FileID string
	// FileVersion — явная версия от вызывающего; nil — следующая
	// версия из каталога
	FileVersion *int
	// IoTime — накопленное время ввода-вывода фазы staging
	IoTime time.Duration
}

// CommitResult — итог коммита. При ошибке возвращается вместе с ней:
// Records содержит уже закоммиченные файлы — частичный успех партии
// допустим и сигнализируется, отката не выполняется.
type CommitResult struct {
	// Records — полностью закоммиченные записи
	Records []*model.FileRecord
	// IoTime — суммарное время ввода-вывода, включая переносы
	IoTime time.Duration
}

// Commit обрабатывает staged-файлы по порядку: путь по дате приёма,
// перенос из staging, запись в каталог, членство в контейнере,
// счётчики тома. Агрегированные размеры контейнеров записываются после
// всех файлов — по одной записи на затронутый контейнер.
func (c *Committer) Commit(ctx context.Context, p CommitParams) (*CommitResult, error) {
	res := &CommitResult{IoTime: p.IoTime}
	dateDir := time.Now().UTC().Format("2006-01-02")

	// container_id → агрегированный размер; затронутые — в порядке появления
	sizes := make(map[string]int64)
	var touched []string

	for _, sf := range p.Files {
		fileID := stagedFileID(sf.StagingPath)
		if p.FileID != "" && len(p.Files) == 1 {
			fileID = p.FileID
		}

		version := 0
		if p.FileVersion != nil {
			version = *p.FileVersion
		} else {
			v, err := c.files.NextVersion(ctx, fileID)
			if err != nil {
				return res, failure(KindCatalogFailure, err)
			}
			version = v
		}

		relPath := filepath.Join("data", dateDir, strconv.Itoa(version), fileID)
		finalPath := filepath.Join(p.Volume.MountPoint, relPath)

		ioTime, err := moveFile(sf.StagingPath, finalPath)
		res.IoTime += ioTime
		if err != nil {
			return res, failure(KindIOFailure, err)
		}

		creationDate := time.Now().UTC()
		if info, statErr := os.Stat(finalPath); statErr == nil {
			creationDate = info.ModTime().UTC()
		}

		record := &model.FileRecord{
			DiskID:               p.Volume.DiskID,
			FileName:             relPath,
			FileID:               fileID,
			FileVersion:          version,
			Format:               p.Format,
			FileSize:             sf.Size,
			UncompressedFileSize: sf.Size,
			Compression:          model.CompressionNone,
			IngestionDate:        time.Now().UTC(),
			Checksum:             sf.Checksum,
			ChecksumPlugin:       checksum.Algorithm,
			FileStatus:           model.FileStatusOK,
			CreationDate:         creationDate,
			IoTime:               res.IoTime,
		}

		// Байты уже надёжно размещены: любой сбой каталога дальше —
		// громко сообщаемое расхождение, автоматической сверки нет.
		if err := c.files.Insert(ctx, record); err != nil {
			c.logger.Error("Файл размещён, но запись каталога не создана",
				slog.String("file_id", fileID),
				slog.Int("file_version", version),
				slog.String("path", finalPath),
				slog.String("error", err.Error()),
			)
			return res, failure(KindCatalogFailure, err)
		}

		if sf.Container != nil && sf.Container.ContainerID != "" {
			if err := c.containers.AddFile(ctx, sf.Container.ContainerID, fileID, version); err != nil {
				return res, failure(KindCatalogFailure, err)
			}
		}

		// Размер файла учитывается во всех контейнерах-предках:
		// агрегат контейнера — сумма файлов-потомков.
		for node := sf.Container; node != nil; node = node.Parent {
			if node.ContainerID == "" {
				continue
			}
			if _, ok := sizes[node.ContainerID]; !ok {
				touched = append(touched, node.ContainerID)
			}
			sizes[node.ContainerID] += sf.Size
			node.Size += sf.Size
		}

		if err := c.volumes.AddFile(ctx, p.Volume.DiskID, record.FileSize); err != nil {
			return res, failure(KindCatalogFailure, err)
		}

		res.Records = append(res.Records, record)

		c.logger.Info("Файл принят",
			slog.String("file_id", fileID),
			slog.Int("file_version", version),
			slog.String("disk_id", p.Volume.DiskID),
			slog.Int64("size", sf.Size),
			slog.String("checksum", sf.Checksum),
		)
	}

	for _, containerID := range touched {
		if err := c.containers.SetSize(ctx, containerID, sizes[containerID]); err != nil {
			return res, failure(KindCatalogFailure, err)
		}
	}

	return res, nil
}

// stagedFileID выводит логический идентификатор файла из имени
// staging-файла ({uuid}___{baseName}).
func stagedFileID(stagingPath string) string {
	base := filepath.Base(stagingPath)
	if i := strings.Index(base, "___"); i >= 0 {
		return base[i+3:]
	}
	return base
}

// moveFile атомарно переносит файл в конечное расположение. Для путей
// на разных файловых системах rename невозможен — выполняется копия
// с fsync и удалением источника.
func moveFile(src, dst string) (time.Duration, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return time.Since(start), fmt.Errorf("ошибка создания каталога назначения: %w", err)
	}

	err := os.Rename(src, dst)
	if err != nil && errors.Is(err, syscall.EXDEV) {
		err = copyAndRemove(src, dst)
	}
	if err != nil {
		return time.Since(start), fmt.Errorf("ошибка переноса %s: %w", src, err)
	}
	return time.Since(start), nil
}

func copyAndRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
