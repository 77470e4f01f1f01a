package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global audit logger instance
	Logger *zap.Logger

	// Metrics
	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_verdicts_total",
			Help: "Total number of enforcement verdicts by detector stage",
		},
		[]string{"stage"},
	)

	stageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_stage_errors_total",
			Help: "Total number of detector stage failures treated as no verdict",
		},
		[]string{"stage"},
	)

	evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_evaluation_duration_seconds",
			Help:    "Time spent evaluating messages through the detector pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context, listenAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(verdictsTotal)
	prometheus.MustRegister(stageErrorsTotal)
	prometheus.MustRegister(evaluationDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(listenAddr, nil); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

// RecordVerdict records a positive verdict produced by a detector stage
func RecordVerdict(stage string) {
	verdictsTotal.WithLabelValues(stage).Inc()
}

// RecordStageError records a detector stage failure
func RecordStageError(stage string) {
	stageErrorsTotal.WithLabelValues(stage).Inc()
}

// StartEvaluation returns a function to record pipeline evaluation
// duration under the final status label.
func StartEvaluation() func(status string) {
	start := time.Now()
	return func(status string) {
		evaluationDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
