// archive.go — оркестрация staged-приёма: одиночный файл и
// multipart-контейнер.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/domain/model"
	"github.com/amanningeso/ngas/internal/domain/state"
	"github.com/amanningeso/ngas/internal/storage/staging"
)

// ArchiveRequest — один staged-архивный запрос.
type ArchiveRequest struct {
	// Command — имя команды для журнала и метрик (ARCHIVE, CARCHIVE)
	Command string
	// Body — поток данных запроса; nil — pull-режим, источник
	// открывается по FileURI
	Body io.Reader
	// FileURI — исходный URI либо имя файла
	FileURI string
	// BaseName — имя файла одиночного запроса
	BaseName string
	// Format — MIME-тип содержимого
	Format string
	// DeclaredSize — заявленный размер; 0 — не заявлен
	DeclaredSize int64
	// Boundary — multipart boundary; пусто — одиночный файл
	Boundary string
	// RootName — имя корневого контейнера (CARCHIVE)
	RootName string
	// Containerized — персистировать дерево контейнеров
	Containerized bool
	// FileID — переопределение идентификатора из pull-URI
	// (применимо только к одиночному файлу)
	FileID string
	// FileVersion — явная версия из pull-URI; nil — следующая из каталога
	FileVersion *int
}

// ArchiveResult — итог успешного staged-приёма.
type ArchiveResult struct {
	// Records — принятые файлы
	Records []*model.FileRecord
	// Root — корневой контейнер; nil для одиночного файла
	Root *model.Container
	// BytesRead — прочитано байт из запроса
	BytesRead int64
	// IngestRate — скорость приёма, байт/с
	IngestRate float64
}

// ArchiveService — оркестратор архивных запросов.
type ArchiveService struct {
	machine    *state.Machine
	selector   *VolumeSelector
	writer     *staging.Writer
	pull       PullOpener
	containers *ContainerService
	committer  *Committer
	notifier   Notifier
	volumes    catalog.Volumes
	usage      DiskUsageFunc

	allowArchive bool
	thresholdMB  int64
	logger       *slog.Logger
}

// NewArchiveService создаёт оркестратор staged-приёма.
func NewArchiveService(
	machine *state.Machine,
	selector *VolumeSelector,
	writer *staging.Writer,
	pull PullOpener,
	containers *ContainerService,
	committer *Committer,
	notifier Notifier,
	volumes catalog.Volumes,
	usage DiskUsageFunc,
	allowArchive bool,
	thresholdMB int64,
	logger *slog.Logger,
) *ArchiveService {
	return &ArchiveService{
		machine:      machine,
		selector:     selector,
		writer:       writer,
		pull:         pull,
		containers:   containers,
		committer:    committer,
		notifier:     notifier,
		volumes:      volumes,
		usage:        usage,
		allowArchive: allowArchive,
		thresholdMB:  thresholdMB,
		logger:       logger.With(slog.String("component", "archive_service")),
	}
}

// Archive обрабатывает staged-запрос: проверка состояния, выбор тома,
// запись в staging, персистенция контейнеров (для CARCHIVE), коммит
// метаданных, проверка порога свободного места, уведомление подписчика.
func (s *ArchiveService) Archive(ctx context.Context, req ArchiveRequest) (*ArchiveResult, error) {
	start := time.Now()

	res, err := s.archive(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	archiveRequestsTotal.WithLabelValues(req.Command, outcome).Inc()
	archiveDuration.WithLabelValues(req.Command).Observe(time.Since(start).Seconds())
	if res != nil {
		archiveBytesTotal.Add(float64(res.BytesRead))
		if res.IngestRate > 0 {
			ingestRate.Observe(res.IngestRate)
		}
	}
	return res, err
}

func (s *ArchiveService) archive(ctx context.Context, req ArchiveRequest) (*ArchiveResult, error) {
	if !s.allowArchive {
		return nil, failure(KindConfigurationRejected, fmt.Errorf("приём данных отключён конфигурацией"))
	}

	release, err := s.machine.BeginRequest()
	if err != nil {
		return nil, failure(KindConfigurationRejected, err)
	}
	defer release()

	activeRequests.Inc()
	defer activeRequests.Dec()

	vol, err := s.selector.SelectArchive(ctx)
	if err != nil {
		return nil, err
	}

	// Pull-режим: источник открывается после выбора тома, размер
	// берётся из Content-Length источника.
	body := req.Body
	remoteLength := int64(-1)
	if body == nil {
		if s.pull == nil {
			return nil, failure(KindConfigurationRejected, fmt.Errorf("pull-приём не сконфигурирован"))
		}
		rc, length, err := s.pull.Open(ctx, req.FileURI)
		if err != nil {
			return nil, failure(KindIOFailure, err)
		}
		defer rc.Close()
		body = rc
		remoteLength = length
	}

	staged, err := s.writer.Write(ctx, staging.Params{
		Body:                body,
		FileURI:             req.FileURI,
		DeclaredSize:        req.DeclaredSize,
		RemoteContentLength: remoteLength,
		Boundary:            req.Boundary,
		RootName:            req.RootName,
		BaseName:            req.BaseName,
		StagingDir:          vol.StagingDir(),
		SlotID:              vol.SlotID,
	})
	if err != nil {
		return nil, failure(KindIOFailure, err)
	}

	result := &ArchiveResult{
		BytesRead:  staged.BytesRead,
		IngestRate: staged.IngestRate,
	}

	if req.Containerized {
		if err := s.containers.PersistTree(ctx, staged.Root); err != nil {
			return result, err
		}
		result.Root = staged.Root
	} else {
		// Корень синтетический, членство в контейнерах не пишем
		for i := range staged.Files {
			staged.Files[i].Container = nil
		}
	}

	commit, err := s.committer.Commit(ctx, CommitParams{
		Volume:      vol,
		Files:       staged.Files,
		Format:      req.Format,
		FileID:      req.FileID,
		FileVersion: req.FileVersion,
		IoTime:      staged.Elapsed,
	})
	if commit != nil {
		result.Records = commit.Records
	}
	if err != nil {
		return result, err
	}

	checkFreeSpaceThreshold(ctx, s.volumes, s.usage, vol, s.thresholdMB, s.logger)
	s.notifier.NotifyIngested(ctx, result.Records)

	s.logger.Info("Архивный запрос выполнен",
		slog.String("command", req.Command),
		slog.Int("files", len(result.Records)),
		slog.Int64("bytes", result.BytesRead),
		slog.String("disk_id", vol.DiskID),
	)
	return result, nil
}
