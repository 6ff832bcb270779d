// Пакет config — загрузка и валидация конфигурации ядра приёма
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// VolumeMount — том хранения из конфигурации: слот и точка монтирования.
type VolumeMount struct {
	SlotID     string
	MountPoint string
}

// Config содержит все параметры конфигурации ядра приёма.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор хоста (например, "ngas-host-01")
	HostID string
	// Тома хранения: список слот:точка_монтирования
	Volumes []VolumeMount
	// Размер блока чтения/записи в байтах
	BlockSize int64
	// Разрешена ли обработка архивных запросов
	AllowArchive bool
	// Порог свободного места (МБ): ниже — том помечается заполненным
	FreeSpaceThresholdMB int64
	// Метод зеркальной загрузки: HTTP или RSYNC
	FetchMethod string
	// URL подписчика для уведомлений о новых файлах (опционально)
	SubscriberURL string

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	port, err := getEnvInt("NGAS_PORT", 7777)
	if err != nil {
		return nil, fmt.Errorf("NGAS_PORT: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("NGAS_PORT: значение %d вне допустимого диапазона", port)
	}
	cfg.Port = port

	cfg.HostID, err = getEnvRequired("NGAS_HOST_ID")
	if err != nil {
		return nil, err
	}

	// NGAS_VOLUMES — обязательный: "slot1:/mnt/a,slot2:/mnt/b"
	volumes, err := getEnvRequired("NGAS_VOLUMES")
	if err != nil {
		return nil, err
	}
	cfg.Volumes, err = parseVolumes(volumes)
	if err != nil {
		return nil, fmt.Errorf("NGAS_VOLUMES: %w", err)
	}

	// NGAS_BLOCK_SIZE — размер блока (по умолчанию 64 КБ)
	blockSize, err := getEnvInt64("NGAS_BLOCK_SIZE", 65536)
	if err != nil {
		return nil, fmt.Errorf("NGAS_BLOCK_SIZE: %w", err)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("NGAS_BLOCK_SIZE: значение должно быть положительным")
	}
	cfg.BlockSize = blockSize

	cfg.AllowArchive = getEnvDefault("NGAS_ALLOW_ARCHIVE", "true") == "true"

	threshold, err := getEnvInt64("NGAS_FREE_SPACE_THRESHOLD_MB", 100)
	if err != nil {
		return nil, fmt.Errorf("NGAS_FREE_SPACE_THRESHOLD_MB: %w", err)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("NGAS_FREE_SPACE_THRESHOLD_MB: значение не может быть отрицательным")
	}
	cfg.FreeSpaceThresholdMB = threshold

	cfg.FetchMethod = getEnvDefault("NGAS_FETCH_METHOD", "HTTP")
	if cfg.FetchMethod != "HTTP" && cfg.FetchMethod != "RSYNC" {
		return nil, fmt.Errorf("NGAS_FETCH_METHOD: недопустимое значение %q, допустимые: HTTP, RSYNC", cfg.FetchMethod)
	}

	cfg.SubscriberURL = getEnvDefault("NGAS_SUBSCRIBER_URL", "")

	cfg.DBHost = getEnvDefault("NGAS_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("NGAS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("NGAS_DB_PORT: %w", err)
	}
	cfg.DBUser, err = getEnvRequired("NGAS_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("NGAS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBName, err = getEnvRequired("NGAS_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("NGAS_DB_SSLMODE", "disable")

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("NGAS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("NGAS_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("NGAS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("NGAS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("NGAS_SHUTDOWN_TIMEOUT", 25*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NGAS_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("NGAS_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NGAS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("NGAS_DEPHEALTH_GROUP", "ngas")

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// parseVolumes разбирает список томов вида "slot1:/mnt/a,slot2:/mnt/b".
func parseVolumes(s string) ([]VolumeMount, error) {
	var result []VolumeMount
	seen := map[string]bool{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		slot, mount, ok := strings.Cut(item, ":")
		if !ok || slot == "" || mount == "" {
			return nil, fmt.Errorf("некорректный элемент %q, ожидается слот:точка_монтирования", item)
		}
		if seen[slot] {
			return nil, fmt.Errorf("дублирующийся слот %q", slot)
		}
		seen[slot] = true
		result = append(result, VolumeMount{SlotID: slot, MountPoint: mount})
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("список томов пуст")
	}
	return result, nil
}

// parseLogLevel преобразует строку в slog.Level.
func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", s)
	}
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции чтения переменных окружения ---

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s: обязательная переменная не установлена", key)
	}
	return v, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое %q", v)
	}
	return n, nil
}

func getEnvInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое %q", v)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность %q", v)
	}
	return d, nil
}
