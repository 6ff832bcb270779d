// metrics.go — Prometheus-метрики приёма. HTTP-метрики регистрируются
// в пакете middleware, здесь — бизнес-метрики архивных запросов.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// archiveRequestsTotal — количество архивных запросов по команде и исходу.
	archiveRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngas_archive_requests_total",
		Help: "Общее количество архивных запросов (по команде и исходу).",
	}, []string{"command", "result"})

	// archiveBytesTotal — принятые байты.
	archiveBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ngas_archive_bytes_total",
		Help: "Общее количество принятых байт.",
	})

	// archiveDuration — длительность обработки архивного запроса.
	archiveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ngas_archive_duration_seconds",
		Help:    "Длительность обработки архивного запроса.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"command"})

	// ingestRate — скорость приёма, байт/с.
	ingestRate = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ngas_ingest_rate_bytes_per_second",
		Help:    "Скорость приёма данных, байт в секунду.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})

	// activeRequests — архивные запросы в полёте.
	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngas_active_archive_requests",
		Help: "Количество активных архивных запросов.",
	})

	// volumesCompleted — тома, помеченные заполненными.
	volumesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ngas_volumes_completed_total",
		Help: "Количество томов, помеченных заполненными.",
	})
)
