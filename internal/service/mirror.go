// mirror.go — оркестрация зеркального приёма: возобновляемая загрузка
// файла с удалённого узла с классификацией сбоев.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/domain/model"
	"github.com/amanningeso/ngas/internal/domain/state"
	"github.com/amanningeso/ngas/internal/storage/diskres"
	"github.com/amanningeso/ngas/internal/storage/fetch"
)

// MirrorRequest — один запрос зеркального приёма.
type MirrorRequest struct {
	// FileID — логический идентификатор файла
	FileID string
	// FileVersion — версия файла на узле-источнике
	FileVersion int
	// URI — адрес источника данных
	URI string
	// Format — MIME-тип содержимого
	Format string
	// StartByte — смещение возобновления; -1 — определить по staging-файлу
	StartByte int64
}

// MirrorResult — итог успешного зеркального приёма.
type MirrorResult struct {
	// Record — принятый файл
	Record *model.FileRecord
	// BytesReceived — байт получено в этой попытке
	BytesReceived int64
}

// MirrorService — оркестратор зеркального приёма.
type MirrorService struct {
	machine   *state.Machine
	selector  *VolumeSelector
	fetcher   fetch.Fetcher
	locks     *diskres.Registry
	committer *Committer
	notifier  Notifier
	volumes   catalog.Volumes
	usage     DiskUsageFunc

	allowArchive bool
	thresholdMB  int64
	logger       *slog.Logger
}

// NewMirrorService создаёт оркестратор зеркального приёма.
func NewMirrorService(
	machine *state.Machine,
	selector *VolumeSelector,
	fetcher fetch.Fetcher,
	locks *diskres.Registry,
	committer *Committer,
	notifier Notifier,
	volumes catalog.Volumes,
	usage DiskUsageFunc,
	allowArchive bool,
	thresholdMB int64,
	logger *slog.Logger,
) *MirrorService {
	return &MirrorService{
		machine:      machine,
		selector:     selector,
		fetcher:      fetcher,
		locks:        locks,
		committer:    committer,
		notifier:     notifier,
		volumes:      volumes,
		usage:        usage,
		allowArchive: allowArchive,
		thresholdMB:  thresholdMB,
		logger:       logger.With(slog.String("component", "mirror_service")),
	}
}

// mirrorStagingPath — детерминированное имя staging-файла: повторная
// попытка того же (file_id, version) находит свой частичный файл.
func mirrorStagingPath(stagingDir, fileID string, version int) string {
	return filepath.Join(stagingDir, fmt.Sprintf("%s___v%d", fileID, version))
}

// Mirror выполняет одну попытку зеркального приёма.
//
// Классификация сбоев загрузки:
//   - нехватка места на диске: том помечается заполненным, сбой
//     окончателен для тома (DISK_EXHAUSTED);
//   - частичная передача (получены байты либо попытка начиналась
//     с ненулевого смещения): staging-файл сохраняется как точка
//     возобновления (RESUMABLE);
//   - ни байта не получено с нулевого смещения: staging-файл удаляется,
//     попытка окончательна (IO_FAILURE).
func (s *MirrorService) Mirror(ctx context.Context, req MirrorRequest) (*MirrorResult, error) {
	start := time.Now()

	res, err := s.mirror(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	archiveRequestsTotal.WithLabelValues("MIRRARCHIVE", outcome).Inc()
	archiveDuration.WithLabelValues("MIRRARCHIVE").Observe(time.Since(start).Seconds())
	if res != nil {
		archiveBytesTotal.Add(float64(res.BytesReceived))
	}
	return res, err
}

func (s *MirrorService) mirror(ctx context.Context, req MirrorRequest) (*MirrorResult, error) {
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

	vol, err := s.selector.SelectMirror(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(vol.StagingDir(), 0o750); err != nil {
		return nil, failure(KindIOFailure, err)
	}
	stagingPath := mirrorStagingPath(vol.StagingDir(), req.FileID, req.FileVersion)

	offset := req.StartByte
	if offset < 0 {
		offset = 0
		if info, statErr := os.Stat(stagingPath); statErr == nil {
			offset = info.Size()
		}
	}

	unlock := s.locks.Acquire(vol.SlotID)
	fres, err := s.fetcher.Fetch(ctx, req.URI, stagingPath, offset)
	unlock()

	if err != nil {
		return nil, s.classifyFetchFailure(ctx, vol, stagingPath, offset, fres, err)
	}

	commit, err := s.committer.Commit(ctx, CommitParams{
		Volume: vol,
		Files: []model.StagedFile{{
			StagingPath: stagingPath,
			Checksum:    fres.Checksum,
			Size:        fres.FileSize,
		}},
		Format:      req.Format,
		FileID:      req.FileID,
		FileVersion: &req.FileVersion,
		IoTime:      fres.IoTime,
	})
	result := &MirrorResult{BytesReceived: fres.BytesReceived}
	if err != nil {
		return result, err
	}
	result.Record = commit.Records[0]

	checkFreeSpaceThreshold(ctx, s.volumes, s.usage, vol, s.thresholdMB, s.logger)
	s.notifier.NotifyIngested(ctx, commit.Records)

	s.logger.Info("Зеркальный приём выполнен",
		slog.String("file_id", req.FileID),
		slog.Int("file_version", req.FileVersion),
		slog.Int64("bytes_received", fres.BytesReceived),
		slog.Int64("file_size", fres.FileSize),
		slog.String("disk_id", vol.DiskID),
	)
	return result, nil
}

// classifyFetchFailure переводит сбой загрузки в класс исхода.
func (s *MirrorService) classifyFetchFailure(
	ctx context.Context,
	vol *model.Volume,
	stagingPath string,
	offset int64,
	fres *fetch.Result,
	err error,
) error {
	if fetch.IsNoSpace(err) {
		if markErr := s.volumes.MarkCompleted(ctx, vol.DiskID, time.Now().UTC()); markErr != nil {
			s.logger.Error("Не удалось пометить заполненным исчерпанный том",
				slog.String("disk_id", vol.DiskID),
				slog.String("error", markErr.Error()),
			)
		} else {
			volumesCompleted.Inc()
			s.logger.Warn("Место на томе исчерпано, том помечен заполненным",
				slog.String("disk_id", vol.DiskID),
			)
		}
		return failure(KindDiskExhausted, err)
	}

	received := int64(0)
	if fres != nil {
		received = fres.BytesReceived
	}
	if received > 0 || offset > 0 {
		s.logger.Warn("Частичная передача, staging-файл сохранён для возобновления",
			slog.String("staging_path", stagingPath),
			slog.Int64("offset", offset),
			slog.Int64("received", received),
			slog.String("error", err.Error()),
		)
		return failure(KindResumable, err)
	}

	_ = os.Remove(stagingPath)
	return failure(KindIOFailure, err)
}
