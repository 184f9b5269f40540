package models

import (
	"slices"
)

// TableStatus is the occupancy state of a physical table
type TableStatus string

const (
	TableAvailable     TableStatus = "available"
	TableOccupied      TableStatus = "occupied"
	TableReserved      TableStatus = "reserved"
	TableNeedsCleaning TableStatus = "needs-cleaning"
)

// ParseTableStatus rejects any status outside the closed set
func ParseTableStatus(s string) (TableStatus, bool) {
	switch TableStatus(s) {
	case TableAvailable, TableOccupied, TableReserved, TableNeedsCleaning:
		return TableStatus(s), true
	default:
		return "", false
	}
}

// Table is one physical seat cluster
type Table struct {
	ID           string      `json:"id" db:"id"`
	Number       int         `json:"number" db:"number"`
	Capacity     int         `json:"capacity" db:"capacity"`
	Section      string      `json:"section" db:"section"`
	Status       TableStatus `json:"status" db:"status"`
	OpenCheckIDs []string    `json:"open_check_ids"`
	Version      int         `json:"version" db:"version"`
}

// HasOpenChecks reports whether any unsettled check references the table
func (t *Table) HasOpenChecks() bool {
	return len(t.OpenCheckIDs) > 0
}

// AttachCheck adds a check to the open set and marks the table occupied.
func (t *Table) AttachCheck(checkID string) {
	if !slices.Contains(t.OpenCheckIDs, checkID) {
		t.OpenCheckIDs = append(t.OpenCheckIDs, checkID)
	}
	t.Status = TableOccupied
}

// DetachCheck removes a check from the open set. The table becomes
// available once no open checks remain.
func (t *Table) DetachCheck(checkID string) {
	t.OpenCheckIDs = slices.DeleteFunc(t.OpenCheckIDs, func(id string) bool {
		return id == checkID
	})
	if len(t.OpenCheckIDs) == 0 {
		t.OpenCheckIDs = nil
		t.Status = TableAvailable
	}
}

// Clone returns a copy that shares no slices with t
func (t *Table) Clone() *Table {
	c := *t
	c.OpenCheckIDs = slices.Clone(t.OpenCheckIDs)
	return &c
}
