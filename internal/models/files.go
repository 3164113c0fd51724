package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// FileRecord describes one stored file as seen by the catalog.
type FileRecord struct {
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
	// TakenDate is the EXIF capture date (YYYY-MM-DD), nil when unknown.
	TakenDate *string `json:"taken_date"`
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	Filename  string  `json:"filename"`
	TakenDate *string `json:"taken_date"`
}

// CalendarMonthSummary counts files per day of a single month.
type CalendarMonthSummary struct {
	Year       int        `json:"year"`
	Month      int        `json:"month"`
	Days       []int      `json:"days"`
	CountByDay DayCounter `json:"count_by_day"`
}

// DayCounter maps day-of-month to a file count. It marshals to a JSON object
// with string keys in ascending numeric order ("2" before "10").
type DayCounter map[int]int

func (c DayCounter) MarshalJSON() ([]byte, error) {
	days := make([]int, 0, len(c))
	for d := range c {
		days = append(days, d)
	}
	sort.Ints(days)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range days {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(d)))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(c[d]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *DayCounter) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(DayCounter, len(raw))
	for k, v := range raw {
		d, err := strconv.Atoi(k)
		if err != nil {
			return err
		}
		out[d] = v
	}
	*c = out
	return nil
}

type EchoRequest struct {
	Text string `json:"text"`
}

type EchoResponse struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
}
