package service

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/PaulBabatuyi/PhotoShare/internal/middleware"
	"github.com/PaulBabatuyi/PhotoShare/internal/models"
)

type fileServer struct {
	storage   StorageInterface
	calendar  CalendarInterface
	extractor ExtractorInterface
	metrics   MetricsRecorder
	logger    *zap.Logger
	uploadSem *semaphore.Weighted
	maxUpload int64
	apiKey    string
}

type StorageInterface interface {
	Save(name string, content []byte) (string, error)
	List() ([]models.FileRecord, error)
	Open(name string) (*os.File, os.FileInfo, error)
	Path(name string) (string, error)
}

type CalendarInterface interface {
	Summarize(files []models.FileRecord, year, month int) (models.CalendarMonthSummary, error)
}

type ExtractorInterface interface {
	TakenDate(path string) *string
}

// MetricsRecorder is the slice of the metrics collector the handlers use.
type MetricsRecorder interface {
	Instrument(endpoint string, next http.Handler) http.Handler
	RecordUpload(result string)
	GetHandler() http.Handler
}

type Options struct {
	APIKey               string
	MaxUploadBytes       int64
	MaxConcurrentUploads int64
}

func NewFileServer(
	storage StorageInterface,
	cal CalendarInterface,
	extractor ExtractorInterface,
	metrics MetricsRecorder,
	logger *zap.Logger,
	opts Options,
) *fileServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrentUploads <= 0 {
		opts.MaxConcurrentUploads = 8
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	return &fileServer{
		storage:   storage,
		calendar:  cal,
		extractor: extractor,
		metrics:   metrics,
		logger:    logger,
		uploadSem: semaphore.NewWeighted(opts.MaxConcurrentUploads),
		maxUpload: opts.MaxUploadBytes,
		apiKey:    opts.APIKey,
	}
}

// Routes mounts every endpoint. Health and metrics are public; the rest
// require the API key. Request ids and request logs wrap the whole router.
func (s *fileServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/healthz", s.metrics.Instrument("healthz", http.HandlerFunc(s.Healthz)))
	r.Method(http.MethodGet, "/metrics", s.metrics.GetHandler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.apiKey))

		r.Method(http.MethodPost, "/echo", s.metrics.Instrument("echo", http.HandlerFunc(s.Echo)))
		r.Method(http.MethodPost, "/upload", s.metrics.Instrument("upload", http.HandlerFunc(s.UploadFile)))
		r.Method(http.MethodGet, "/files", s.metrics.Instrument("files", http.HandlerFunc(s.ListFiles)))
		r.Method(http.MethodGet, "/download/{filename}", s.metrics.Instrument("download", http.HandlerFunc(s.DownloadFile)))
		r.Method(http.MethodGet, "/calendar/{year}/{month}", s.metrics.Instrument("calendar", http.HandlerFunc(s.CalendarMonth)))
	})

	return middleware.Chain(r,
		middleware.RequestID,
		middleware.RequestLogger(s.logger),
	)
}
