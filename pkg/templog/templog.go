// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package templog appends periodic temperature rows to a CSV file.
package templog

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

// TimestampLayout is MM/DD/YYYY HH:MM:SS
const TimestampLayout = "01/02/2006 15:04:05"

// Header is the first row of every log file
var Header = []string{"timestamp", "node", "temp1", "temp2", "temp3"}

// Row is one node's temperatures at a logging tick
type Row struct {
	Node  string
	Temps [3]float64
}

// NextBoundary returns the first multiple of every strictly after t.
// Boundaries are aligned to the wall clock in t's location, so a 15m
// cadence fires at :00, :15, :30 and :45.
func NextBoundary(t time.Time, every time.Duration) time.Time {
	if every <= 0 {
		return t
	}
	_, offset := t.Zone()
	local := t.Add(time.Duration(offset) * time.Second)
	next := local.Truncate(every).Add(every)
	return next.Add(-time.Duration(offset) * time.Second)
}

// Writer appends rows to a CSV file, writing the header once per file
type Writer struct {
	path string
}

// NewWriter creates a writer for path; the file is opened per append
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the log file path
func (w *Writer) Path() string { return w.path }

// Append writes one row per entry stamped with ts
func (w *Writer) Append(ts time.Time, rows []Row) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temperature log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat temperature log: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(Header); err != nil {
			return err
		}
	}

	stamp := ts.Format(TimestampLayout)
	for _, r := range rows {
		record := []string{stamp, r.Node, formatTemp(r.Temps[0]), formatTemp(r.Temps[1]), formatTemp(r.Temps[2])}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write temperature log: %w", err)
	}
	return nil
}

func formatTemp(c float64) string {
	if math.IsNaN(c) {
		return "NaN"
	}
	return strconv.FormatFloat(c, 'f', 2, 64)
}
