// Точка входа ядра приёма — сервиса архивации данных с каталогом
// в PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/amanningeso/ngas/internal/api/handlers"
	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/config"
	"github.com/amanningeso/ngas/internal/database"
	"github.com/amanningeso/ngas/internal/domain/state"
	"github.com/amanningeso/ngas/internal/server"
	"github.com/amanningeso/ngas/internal/service"
	"github.com/amanningeso/ngas/internal/storage/diskres"
	"github.com/amanningeso/ngas/internal/storage/fetch"
	"github.com/amanningeso/ngas/internal/storage/staging"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Ядро приёма запускается",
		slog.String("host_id", cfg.HostID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Int("volumes", len(cfg.Volumes)),
		slog.Bool("allow_archive", cfg.AllowArchive),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка применения миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 2. Репозитории каталога
	volumesRepo := catalog.NewVolumes(pool)
	filesRepo := catalog.NewFiles(pool)
	containersRepo := catalog.NewContainers(pool)

	// 3. Регистрация томов в каталоге
	if err := service.RegisterVolumes(ctx, volumesRepo, cfg.HostID, cfg.Volumes, getDiskUsage, logger); err != nil {
		logger.Error("Ошибка регистрации томов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Конечный автомат состояния сервера
	machine, err := state.NewMachine(state.StateOnline)
	if err != nil {
		logger.Error("Ошибка инициализации state machine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Слой хранения
	locks := diskres.NewRegistry()
	writer := staging.NewWriter(cfg.BlockSize, locks)

	fetcher, err := fetch.New(fetch.Method(cfg.FetchMethod), cfg.BlockSize, logger)
	if err != nil {
		logger.Error("Ошибка инициализации загрузчика", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Уведомитель подписчика
	var notifier service.Notifier = service.NopNotifier{}
	if cfg.SubscriberURL != "" {
		notifier = service.NewHTTPNotifier(cfg.SubscriberURL, logger)
		logger.Info("Уведомления подписчика включены", slog.String("url", cfg.SubscriberURL))
	}

	// 7. Сервисы приёма
	selector := service.NewVolumeSelector(volumesRepo, cfg.HostID, nil, logger)
	containerSvc := service.NewContainerService(containersRepo, logger)
	committer := service.NewCommitter(filesRepo, containersRepo, volumesRepo, logger)
	pullOpener := service.NewHTTPPullOpener(logger)

	archiveSvc := service.NewArchiveService(
		machine, selector, writer, pullOpener, containerSvc, committer, notifier,
		volumesRepo, getDiskUsage, cfg.AllowArchive, cfg.FreeSpaceThresholdMB, logger,
	)
	mirrorSvc := service.NewMirrorService(
		machine, selector, fetcher, locks, committer, notifier,
		volumesRepo, getDiskUsage, cfg.AllowArchive, cfg.FreeSpaceThresholdMB, logger,
	)

	// 8. topologymetrics — мониторинг зависимостей
	pgDB := stdlib.OpenDBFromPool(pool)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.HostID,
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.SubscriberURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 9. Handlers
	mountPoints := make([]string, 0, len(cfg.Volumes))
	for _, v := range cfg.Volumes {
		mountPoints = append(mountPoints, v.MountPoint)
	}

	archiveHandler := handlers.NewArchiveHandler(archiveSvc, mirrorSvc, logger)
	healthHandler := handlers.NewHealthHandler(mountPoints, database.NewReadinessChecker(pool))
	stateHandler := handlers.NewStateHandler(machine, logger)

	// 10. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, archiveHandler, healthHandler, stateHandler)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Ядро приёма остановлено")
}
