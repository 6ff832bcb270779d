// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/amanningeso/ngas/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// CatalogChecker — проверка готовности каталога (PostgreSQL).
type CatalogChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// mountPoints — точки монтирования томов (для проверки FS)
	mountPoints []string
	// catalog — проверка подключения к каталогу
	catalog CatalogChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(mountPoints []string, catalog CatalogChecker) *HealthHandler {
	return &HealthHandler{
		version:     config.Version,
		mountPoints: mountPoints,
		catalog:     catalog,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "ngas",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: доступность томов на запись, подключение к каталогу.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	volumesCheck := h.checkVolumes()
	if volumesCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	catalogCheck := map[string]any{"status": "ok", "message": "проверка не настроена"}
	if h.catalog != nil {
		status, message := h.catalog.CheckReady()
		catalogCheck = map[string]any{"status": status, "message": message}
		if status != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "ngas",
		"checks": map[string]any{
			"volumes": volumesCheck,
			"catalog": catalogCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkVolumes проверяет доступность точек монтирования на запись.
func (h *HealthHandler) checkVolumes() map[string]any {
	if len(h.mountPoints) == 0 {
		return map[string]any{
			"status":  "ok",
			"message": "проверка не настроена",
		}
	}

	for _, mp := range h.mountPoints {
		testFile := filepath.Join(mp, ".health_check")
		if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
			return map[string]any{
				"status":  statusFail,
				"message": "том " + mp + " недоступен для записи: " + err.Error(),
			}
		}
		_ = os.Remove(testFile)
	}

	return map[string]any{"status": "ok"}
}
