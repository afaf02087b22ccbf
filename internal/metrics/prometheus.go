package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IndexingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddq_indexing_duration_seconds",
			Help:    "Document indexing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"file_type"},
	)

	IndexingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddq_indexing_total",
			Help: "Total documents indexed",
		},
		[]string{"status"},
	)

	IndexChunksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddq_index_chunks_total",
			Help: "Chunks currently held in the index",
		},
		[]string{"tier"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddq_generation_duration_seconds",
			Help:    "Answer generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"composer"},
	)

	AnswersGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddq_answers_generated_total",
			Help: "Total answers generated",
		},
		[]string{"status"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ddq_answer_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RetrievalResultsCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddq_retrieval_results_count",
			Help:    "Number of retrieved chunks per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
		[]string{"tier"},
	)

	ProjectsOutdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ddq_projects_outdated_total",
			Help: "Total project invalidations after corpus changes",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddq_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddq_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddq_async_requests_in_flight",
			Help: "Async requests currently running",
		},
	)
)

func Init() {
	prometheus.MustRegister(IndexingDuration)
	prometheus.MustRegister(IndexingTotal)
	prometheus.MustRegister(IndexChunksTotal)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(AnswersGenerated)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(ProjectsOutdated)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(RequestsInFlight)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
