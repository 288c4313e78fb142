package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// dayFile is the on-disk shape of one schedule file.
type dayFile struct {
	Entries []Entry `json:"entries"`
}

// Store reads and writes the per-day schedule files: one JSON file per
// weekday default (monday.json … sunday.json) and one per date-specific
// override (2026-09-01.json). A date file fully overrides the weekday
// file for that date — sources are never merged per entry.
type Store struct {
	dir    string
	loc    *time.Location
	logger Logger
}

// NewStore creates a store over the given schedule directory, creating it
// if needed.
func NewStore(dir string, loc *time.Location) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating schedule directory: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Store{dir: dir, loc: loc, logger: noopLogger{}}, nil
}

// SetLogger sets the store's logger.
func (s *Store) SetLogger(logger Logger) { s.logger = logger }

// Location returns the store's local timezone.
func (s *Store) Location() *time.Location { return s.loc }

// LoadDay resolves the schedule for one calendar date: the exact-date
// file if present, else the weekday default, else empty. Returns the
// entries sorted by time of day and the source file name.
func (s *Store) LoadDay(date time.Time) ([]Entry, string, error) {
	date = date.In(s.loc)

	dateName := date.Format(dateFileLayout) + ".json"
	if entries, err := s.readFile(dateName); err == nil {
		return entries, dateName, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}

	weekdayName := weekdayFiles[strings.ToLower(date.Weekday().String())]
	entries, err := s.readFile(weekdayName)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return entries, weekdayName, nil
}

// UpsertEntry creates or replaces one entry (keyed by schedule id) in the
// file for the given day key. The entry's time is validated here — an
// unparseable time is rejected with a descriptive reason, never written.
func (s *Store) UpsertEntry(dayKey string, e Entry) error {
	if e.ScheduleID == "" {
		return fmt.Errorf("%w: missing schedule_id", ErrInvalidEntry)
	}
	if e.Action == "" {
		return fmt.Errorf("%w: missing action", ErrInvalidEntry)
	}

	seconds, err := SecondsFromMidnight(e.Time, s.loc)
	if err != nil {
		return err
	}
	e.SecondsFromMidnight = seconds

	name, err := dayFileName(dayKey, s.loc)
	if err != nil {
		return err
	}

	entries, readErr := s.readFile(name)
	if readErr != nil && !errors.Is(readErr, os.ErrNotExist) {
		return readErr
	}

	replaced := false
	for i := range entries {
		if entries[i].ScheduleID == e.ScheduleID {
			entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, e)
	}

	return s.writeFile(name, entries)
}

// DeleteEntry removes one entry by schedule id from the file for the
// given day key.
func (s *Store) DeleteEntry(dayKey, scheduleID string) error {
	name, err := dayFileName(dayKey, s.loc)
	if err != nil {
		return err
	}

	entries, err := s.readFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return ErrEntryNotFound
	}
	if err != nil {
		return err
	}

	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.ScheduleID == scheduleID {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return ErrEntryNotFound
	}

	return s.writeFile(name, kept)
}

// readFile loads one schedule file, recomputing each entry's
// seconds-from-midnight. Entries whose stored time no longer parses are
// skipped with a log entry rather than failing the whole day.
func (s *Store) readFile(name string) ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}

	var f dayFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schedule file %q: %w", name, err)
	}

	entries := make([]Entry, 0, len(f.Entries))
	for _, e := range f.Entries {
		seconds, parseErr := SecondsFromMidnight(e.Time, s.loc)
		if parseErr != nil {
			s.logger.Warn("skipping schedule entry with bad time",
				"file", name, "schedule_id", e.ScheduleID, "time", e.Time)
			continue
		}
		e.SecondsFromMidnight = seconds
		entries = append(entries, e)
	}

	sortEntries(entries)
	return entries, nil
}

// writeFile persists one schedule file atomically (write temp, rename).
func (s *Store) writeFile(name string, entries []Entry) error {
	sortEntries(entries)

	data, err := json.MarshalIndent(dayFile{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling schedule file: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("writing schedule file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing schedule file: %w", err)
	}
	return nil
}

// sortEntries orders by time of day, keeping a stable id order for ties
// so co-equal "next event" entries render deterministically.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].SecondsFromMidnight != entries[j].SecondsFromMidnight {
			return entries[i].SecondsFromMidnight < entries[j].SecondsFromMidnight
		}
		return entries[i].ScheduleID < entries[j].ScheduleID
	})
}
