// Package csvfeed reads reservation batches from CSV drop files, the
// exchange format used by legacy booking systems.
package csvfeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"darpnav/internal/integrations"
	"darpnav/internal/model"
)

// Columns: id,origin,destination,pickup_earliest,pickup_latest,
// dropoff_earliest,dropoff_latest,direct_time[,persons]
// persons is a semicolon separated list.
const fieldCount = 8

// Parse decodes one CSV document. A header row starting with "id" is
// skipped. Rows with malformed numbers fail the whole batch; partial
// imports would hide feed errors.
func Parse(r io.Reader) ([]model.ReservationIn, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv feed: %w", err)
	}
	out := []model.ReservationIn{}
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "id") {
			continue
		}
		if len(row) < fieldCount {
			return nil, fmt.Errorf("csv feed: row %d has %d fields, want %d", i+1, len(row), fieldCount)
		}
		nums := make([]float64, 5)
		for j, col := range []int{3, 4, 5, 6, 7} {
			f, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv feed: row %d col %d: %w", i+1, col+1, err)
			}
			nums[j] = f
		}
		in := model.ReservationIn{
			ID:            strings.TrimSpace(row[0]),
			Origin:        strings.TrimSpace(row[1]),
			Destination:   strings.TrimSpace(row[2]),
			Pickup:        model.TimeWindow{Earliest: nums[0], Latest: nums[1]},
			Dropoff:       model.TimeWindow{Earliest: nums[2], Latest: nums[3]},
			DirectTimeSec: nums[4],
		}
		if len(row) > fieldCount && strings.TrimSpace(row[fieldCount]) != "" {
			in.Persons = strings.Split(strings.TrimSpace(row[fieldCount]), ";")
		}
		out = append(out, in)
	}
	return out, nil
}

// Feed reads CSV drop files from a directory, oldest name first. The
// cursor is the last consumed file name.
type Feed struct {
	Dir string
}

func (f Feed) Name() string { return "csv-drop" }

func (f Feed) Authenticate(cfg map[string]any) (integrations.AuthState, error) {
	return integrations.AuthState{Method: "filesystem"}, nil
}

func (f Feed) FetchReservations(since string, cursor string) (integrations.Batch, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return integrations.Batch{}, fmt.Errorf("csv feed %s: %w", f.Dir, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		if cursor != "" && e.Name() <= cursor {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return integrations.Batch{Cursor: cursor}, nil
	}
	sort.Strings(names)
	file, err := os.Open(filepath.Join(f.Dir, names[0]))
	if err != nil {
		return integrations.Batch{}, err
	}
	defer func() { _ = file.Close() }()
	items, err := Parse(file)
	if err != nil {
		return integrations.Batch{}, err
	}
	return integrations.Batch{Reservations: items, Cursor: names[0]}, nil
}

func (f Feed) Ack(ids []string) error { return nil }
