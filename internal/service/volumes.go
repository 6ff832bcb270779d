// volumes.go — выбор целевого тома и регистрация томов при старте.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/config"
	"github.com/amanningeso/ngas/internal/domain/model"
)

// DiskUsageFunc возвращает total, used, available (в байтах) для пути.
type DiskUsageFunc func(path string) (total, used, available int64, err error)

// MappingFunc — внешняя политика отображения потока на том для
// multi-file приёма. Ядро требует лишь непустой выбор с положительным
// доступным местом.
type MappingFunc func(ctx context.Context, volumes catalog.Volumes, hostID string) (*model.Volume, error)

// VolumeSelector выбирает целевой том для архивного запроса.
// Каталог только читается, побочных эффектов нет.
type VolumeSelector struct {
	volumes catalog.Volumes
	hostID  string
	mapping MappingFunc
	logger  *slog.Logger
}

// NewVolumeSelector создаёт селектор томов. mapping — политика выбора
// для multi-file приёма; nil — выбор по наибольшему доступному месту.
func NewVolumeSelector(volumes catalog.Volumes, hostID string, mapping MappingFunc, logger *slog.Logger) *VolumeSelector {
	return &VolumeSelector{
		volumes: volumes,
		hostID:  hostID,
		mapping: mapping,
		logger:  logger.With(slog.String("component", "volume_selector")),
	}
}

// SelectMirror возвращает незаполненный том хоста с наибольшим доступным
// местом (best-fit по остаточной ёмкости).
func (s *VolumeSelector) SelectMirror(ctx context.Context) (*model.Volume, error) {
	v, err := s.volumes.BestFit(ctx, s.hostID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, failure(KindNoVolumeAvailable, fmt.Errorf("нет доступных томов для приёма на хосте %s", s.hostID))
		}
		return nil, failure(KindCatalogFailure, err)
	}
	return v, nil
}

// SelectArchive возвращает том для multi-file приёма согласно
// сконфигурированной политике отображения.
func (s *VolumeSelector) SelectArchive(ctx context.Context) (*model.Volume, error) {
	if s.mapping == nil {
		return s.SelectMirror(ctx)
	}

	v, err := s.mapping(ctx, s.volumes, s.hostID)
	if err != nil {
		return nil, failure(KindCatalogFailure, err)
	}
	if v == nil || v.AvailableMB <= 0 {
		return nil, failure(KindNoVolumeAvailable, fmt.Errorf("политика отображения не дала тома с доступным местом"))
	}
	return v, nil
}

// checkFreeSpaceThreshold помечает том заполненным, когда фактическое
// свободное место на точке монтирования упало ниже порога. Сбой опроса
// или записи не влияет на исход запроса и только логируется.
func checkFreeSpaceThreshold(
	ctx context.Context,
	volumes catalog.Volumes,
	usage DiskUsageFunc,
	vol *model.Volume,
	thresholdMB int64,
	logger *slog.Logger,
) {
	if usage == nil {
		return
	}
	_, _, avail, err := usage(vol.MountPoint)
	if err != nil {
		logger.Warn("Не удалось опросить свободное место",
			slog.String("mount_point", vol.MountPoint),
			slog.String("error", err.Error()),
		)
		return
	}

	availMB := avail / (1024 * 1024)
	if availMB >= thresholdMB {
		return
	}

	if err := volumes.MarkCompleted(ctx, vol.DiskID, time.Now().UTC()); err != nil {
		logger.Error("Не удалось пометить том заполненным",
			slog.String("disk_id", vol.DiskID),
			slog.String("error", err.Error()),
		)
		return
	}
	volumesCompleted.Inc()
	logger.Warn("Том помечен заполненным: свободное место ниже порога",
		slog.String("disk_id", vol.DiskID),
		slog.Int64("available_mb", availMB),
		slog.Int64("threshold_mb", thresholdMB),
	)
}

// RegisterVolumes регистрирует сконфигурированные тома в каталоге:
// каждая точка монтирования опрашивается на доступное место и
// создаётся/обновляется в ngas_disks.
func RegisterVolumes(
	ctx context.Context,
	volumes catalog.Volumes,
	hostID string,
	mounts []config.VolumeMount,
	usage DiskUsageFunc,
	logger *slog.Logger,
) error {
	for _, m := range mounts {
		_, _, avail, err := usage(m.MountPoint)
		if err != nil {
			return fmt.Errorf("том %s: %w", m.SlotID, err)
		}

		v := &model.Volume{
			DiskID:      fmt.Sprintf("%s-%s", hostID, m.SlotID),
			HostID:      hostID,
			SlotID:      m.SlotID,
			MountPoint:  m.MountPoint,
			AvailableMB: avail / (1024 * 1024),
		}
		if err := volumes.Upsert(ctx, v); err != nil {
			return err
		}

		logger.Info("Том зарегистрирован",
			slog.String("disk_id", v.DiskID),
			slog.String("mount_point", v.MountPoint),
			slog.Int64("available_mb", v.AvailableMB),
		)
	}
	return nil
}
