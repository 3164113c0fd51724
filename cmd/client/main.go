package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/PaulBabatuyi/PhotoShare/internal/models"
)

const defaultServerAddr = "http://localhost:8000"

type FileClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewFileClient(baseURL, apiKey string) *FileClient {
	return &FileClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (fc *FileClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, fc.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", fc.apiKey)
	return req, nil
}

func (fc *FileClient) doJSON(req *http.Request, out any) error {
	resp, err := fc.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UploadFile sends a local file as multipart form data
func (fc *FileClient) UploadFile(ctx context.Context, filePath string) (*models.UploadResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := fc.newRequest(ctx, http.MethodPost, "/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out models.UploadResult
	if err := fc.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return &out, nil
}

func (fc *FileClient) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	req, err := fc.newRequest(ctx, http.MethodGet, "/files", nil)
	if err != nil {
		return nil, err
	}
	var out []models.FileRecord
	if err := fc.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return out, nil
}

func (fc *FileClient) Calendar(ctx context.Context, year, month int) (*models.CalendarMonthSummary, error) {
	req, err := fc.newRequest(ctx, http.MethodGet, fmt.Sprintf("/calendar/%d/%d", year, month), nil)
	if err != nil {
		return nil, err
	}
	var out models.CalendarMonthSummary
	if err := fc.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	return &out, nil
}

// DownloadFile writes the named file to outputPath
func (fc *FileClient) DownloadFile(ctx context.Context, filename, outputPath string) (int64, error) {
	req, err := fc.newRequest(ctx, http.MethodGet, "/download/"+url.PathEscape(filename), nil)
	if err != nil {
		return 0, err
	}
	resp, err := fc.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: server returned %s", filename, resp.Status)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	n, err := io.Copy(outFile, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: client [-server URL] [-key KEY] <command>

commands:
  upload <path>...
  list
  download <filename> [output]
  calendar [year month]
`)
	flag.PrintDefaults()
}

func main() {
	server := flag.String("server", envOr("PHOTOSHARE_SERVER", defaultServerAddr), "server base URL")
	apiKey := flag.String("key", envOr("API_KEY", "dev-key"), "API key")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	client := NewFileClient(*server, *apiKey)
	ctx := context.Background()

	switch args[0] {
	case "upload":
		for _, path := range args[1:] {
			resp, err := client.UploadFile(ctx, path)
			if err != nil {
				log.Printf("Upload failed: %v", err)
				continue
			}
			taken := "-"
			if resp.TakenDate != nil {
				taken = *resp.TakenDate
			}
			fmt.Printf("✓ Uploaded: %s (taken: %s)\n", resp.Filename, taken)
		}

	case "list":
		files, err := client.ListFiles(ctx)
		if err != nil {
			log.Fatalf("List files failed: %v", err)
		}
		fmt.Printf("✓ Found %d files:\n", len(files))
		for i, f := range files {
			fmt.Printf("  %d. %s (%d bytes, uploaded %s)\n",
				i+1, f.Filename, f.SizeBytes, f.UploadedAt.Format(time.RFC3339))
		}

	case "download":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		out := args[1]
		if len(args) > 2 {
			out = args[2]
		}
		n, err := client.DownloadFile(ctx, args[1], out)
		if err != nil {
			log.Fatalf("Download failed: %v", err)
		}
		fmt.Printf("✓ Downloaded %s (%d bytes)\n", out, n)

	case "calendar":
		now := time.Now()
		year, month := now.Year(), int(now.Month())
		if len(args) == 3 {
			var err1, err2 error
			year, err1 = strconv.Atoi(args[1])
			month, err2 = strconv.Atoi(args[2])
			if err1 != nil || err2 != nil {
				log.Fatalf("year and month must be integers")
			}
		}
		summary, err := client.Calendar(ctx, year, month)
		if err != nil {
			log.Fatalf("Calendar failed: %v", err)
		}
		fmt.Printf("✓ %04d-%02d: %d days with photos\n", summary.Year, summary.Month, len(summary.Days))
		for _, d := range summary.Days {
			fmt.Printf("  %2d: %d\n", d, summary.CountByDay[d])
		}

	default:
		usage()
		os.Exit(2)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
