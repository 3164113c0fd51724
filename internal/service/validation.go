package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
)

var (
	errFileTooLarge = errors.New("file too large")
	errNoFilePart   = errors.New(`multipart field "file" is required`)
)

// readUpload streams the multipart body until the "file" part and reads
// at most limit bytes of it.
func readUpload(r *http.Request, limit int64) (filename string, content []byte, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, fmt.Errorf("expected multipart/form-data: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, errNoFilePart
		}
		if err != nil {
			return "", nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		filename = part.FileName()
		content, err = io.ReadAll(io.LimitReader(part, limit+1))
		part.Close()
		if err != nil {
			return "", nil, fmt.Errorf("read file part: %w", err)
		}
		if int64(len(content)) > limit {
			return "", nil, errFileTooLarge
		}
		if filename == "" {
			return "", nil, errors.New("file part has no filename")
		}
		return filename, content, nil
	}
}

// parseYearMonth reads {year} and {month} from the route. Range checks on
// month are left to the aggregator.
func parseYearMonth(r *http.Request) (year, month int, err error) {
	year, err = strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, errors.New("year must be an integer")
	}
	month, err = strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, errors.New("month must be an integer")
	}
	return year, month, nil
}

// downloadName returns the decoded {filename} route parameter.
func downloadName(r *http.Request) string {
	name := chi.URLParam(r, "filename")
	// chi matches on RawPath when the client used non-canonical escaping
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}
	return name
}
