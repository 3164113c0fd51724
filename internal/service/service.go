package service

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/PhotoShare/internal/calendar"
	"github.com/PaulBabatuyi/PhotoShare/internal/middleware"
	"github.com/PaulBabatuyi/PhotoShare/internal/models"
	"github.com/PaulBabatuyi/PhotoShare/internal/storage"
)

const uploadField = "file"

func (s *fileServer) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *fileServer) Echo(w http.ResponseWriter, r *http.Request) {
	var req models.EchoRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		validationError(w, "body must be JSON like {\"text\": \"...\"}")
		return
	}

	resp := models.EchoResponse{Text: req.Text, Length: utf8.RuneCountInString(req.Text)}
	s.logger.Info("echo called", zap.Int("length", resp.Length))
	writeJSON(w, http.StatusOK, resp)
}

// UploadFile stores the multipart "file" field and reports the final name
// together with the capture date read back from the stored file.
func (s *fileServer) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.uploadSem.Acquire(ctx, 1); err != nil {
		// client went away while queued
		s.metrics.RecordUpload("cancelled")
		unavailable(w, "upload cancelled while waiting for a slot")
		return
	}
	defer s.uploadSem.Release(1)

	// room for multipart framing on top of the payload limit
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)

	filename, content, err := readUpload(r, s.maxUpload)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, errFileTooLarge), errors.As(err, &tooLarge):
			s.metrics.RecordUpload("too_large")
			fileTooLarge(w, "file exceeds upload limit")
		default:
			s.metrics.RecordUpload("invalid")
			validationError(w, err.Error())
		}
		return
	}

	savedName, err := s.storage.Save(filename, content)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			s.metrics.RecordUpload("invalid")
			validationError(w, err.Error())
			return
		}
		s.metrics.RecordUpload("error")
		s.logger.Error("failed to save upload",
			zap.String("filename", filename),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err),
		)
		internalError(w, "failed to save file")
		return
	}

	var taken *string
	if path, err := s.storage.Path(savedName); err == nil {
		taken = s.extractor.TakenDate(path)
	}

	s.metrics.RecordUpload("ok")
	s.logger.Info("uploaded",
		zap.String("filename", savedName),
		zap.Int("size_bytes", len(content)),
		zap.String("content_type", http.DetectContentType(content)),
		zap.Stringp("taken_date", taken),
	)
	writeJSON(w, http.StatusOK, models.UploadResult{Filename: savedName, TakenDate: taken})
}

// ListFiles returns all stored files, newest first.
func (s *fileServer) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.storage.List()
	if err != nil {
		s.logger.Error("failed to list files", zap.Error(err))
		internalError(w, "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *fileServer) DownloadFile(w http.ResponseWriter, r *http.Request) {
	name := downloadName(r)

	f, info, err := s.storage.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, "file not found")
			return
		}
		s.logger.Error("failed to open file", zap.String("filename", name), zap.Error(err))
		internalError(w, "failed to open file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// CalendarMonth summarizes how many files fall on each day of year/month.
func (s *fileServer) CalendarMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		validationError(w, err.Error())
		return
	}

	files, err := s.storage.List()
	if err != nil {
		s.logger.Error("failed to list files", zap.Error(err))
		internalError(w, "failed to list files")
		return
	}

	summary, err := s.calendar.Summarize(files, year, month)
	if err != nil {
		switch {
		case errors.Is(err, calendar.ErrInvalidMonth):
			validationError(w, err.Error())
		case errors.Is(err, calendar.ErrMalformedDate):
			malformedDate(w, err.Error())
		default:
			s.logger.Error("failed to summarize month", zap.Error(err))
			internalError(w, "failed to summarize month")
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
