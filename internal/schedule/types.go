package schedule

import (
	"encoding/json"
	"fmt"
)

// Action is what a schedule entry does when it fires.
type Action string

// Action constants.
const (
	// ActionSetExhibit assigns an app to the target components.
	ActionSetExhibit Action = "set_exhibit"

	// ActionSetDefinition assigns a content definition to the targets.
	ActionSetDefinition Action = "set_definition"

	// ActionSetDMXScene activates a lighting scene on the DMX bridge.
	// Targets are ignored; the scene routing lives in the bridge.
	ActionSetDMXScene Action = "set_dmx_scene"

	// ActionCommand queues an arbitrary command (the entry value) for the
	// target components.
	ActionCommand Action = "generic_command"

	// ActionReload forces a schedule reload from disk.
	ActionReload Action = "reload"
)

// AllActions returns all valid action values.
func AllActions() []Action {
	return []Action{
		ActionSetExhibit, ActionSetDefinition, ActionSetDMXScene,
		ActionCommand, ActionReload,
	}
}

// Target is a schedule target expression: one or more of a component id,
// "__group:<g>", "__id:<id>", or "__all". In JSON it may be written as a
// bare string or an array of strings; a single element round-trips back
// to the bare string form.
type Target []string

// UnmarshalJSON accepts both "kiosk-1" and ["kiosk-1", "kiosk-2"].
func (t *Target) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Target{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("target must be a string or array of strings: %w", err)
	}
	*t = Target(many)
	return nil
}

// MarshalJSON writes a single target as a bare string.
func (t Target) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// Entry is one scheduled action. Entries are keyed by ScheduleID within a
// day: writing an entry with an existing id replaces it.
type Entry struct {
	ScheduleID string `json:"schedule_id"`
	Name       string `json:"name,omitempty"`

	// Time is the wall-clock fire time as the operator wrote it — "15:30",
	// "3:30 PM", and most natural phrasings parse. Unparseable times are
	// rejected at the write boundary, never silently dropped.
	Time string `json:"time"`

	Action Action `json:"action"`
	Target Target `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`

	// SecondsFromMidnight is recomputed from Time on every load and write.
	SecondsFromMidnight float64 `json:"seconds_from_midnight"`
}

// DaySchedule is one resolved calendar day.
type DaySchedule struct {
	// Date in "2006-01-02" form.
	Date string `json:"date"`

	// Source names the file the day resolved from ("2026-09-01.json" or
	// "monday.json"); empty when no source exists for the day.
	Source string `json:"source,omitempty"`

	// Entries ordered by SecondsFromMidnight. Ties keep write order and
	// share "next event" status.
	Entries []Entry `json:"entries"`
}
