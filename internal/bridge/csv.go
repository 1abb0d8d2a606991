/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package bridge

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/jszwec/csvutil"
)

// csvRecord is one line of a pre-assignment export. Header names follow the
// night-shift spreadsheet.
type csvRecord struct {
	ID        string `csv:"id"`
	Route     string `csv:"ruta"`
	Hour      string `csv:"hora"`
	Day       string `csv:"fecha"`
	Available bool   `csv:"disponible"`
	Vehicle   string `csv:"vehiculo,omitempty"`
}

// ParseCSV decodes a pre-assignment export.
func ParseCSV(r io.Reader) ([]models.ExternalPreAssignment, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("create csv decoder: %w", err)
	}

	var records []csvRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode pre-assignment csv: %w", err)
	}

	rows := make([]models.ExternalPreAssignment, 0, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("pre-assignment csv line %d: missing id", i+2)
		}
		row := models.ExternalPreAssignment{
			ID:         strings.TrimSpace(rec.ID),
			RouteLabel: strings.TrimSpace(rec.Route),
			Hour:       strings.TrimSpace(rec.Hour),
			ServiceDay: strings.TrimSpace(rec.Day),
			Available:  rec.Available,
		}
		if v := strings.TrimSpace(rec.Vehicle); v != "" {
			row.VehicleID = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CSVFeed serves pre-assignments from a CSV file, re-read on every call so
// edits to the export are picked up without a restart.
type CSVFeed struct {
	path string
}

// NewCSVFeed creates a feed reading path.
func NewCSVFeed(path string) *CSVFeed {
	return &CSVFeed{path: path}
}

// Load returns every row of the file.
func (f *CSVFeed) Load() ([]models.ExternalPreAssignment, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open pre-assignment csv: %w", err)
	}
	defer file.Close()
	return ParseCSV(file)
}

// ListAvailableForDay returns open rows of day ordered by hour.
func (f *CSVFeed) ListAvailableForDay(ctx context.Context, day string) ([]models.ExternalPreAssignment, error) {
	return f.filter(ctx, day, func(row models.ExternalPreAssignment) bool { return row.Available })
}

// ListAssignedForDay returns taken rows of day that name a vehicle.
func (f *CSVFeed) ListAssignedForDay(ctx context.Context, day string) ([]models.ExternalPreAssignment, error) {
	return f.filter(ctx, day, func(row models.ExternalPreAssignment) bool {
		return !row.Available && row.VehicleID != nil
	})
}

func (f *CSVFeed) filter(ctx context.Context, day string, keep func(models.ExternalPreAssignment) bool) ([]models.ExternalPreAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := f.Load()
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if row.ServiceDay == day && keep(row) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out, nil
}
