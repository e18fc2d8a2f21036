// Package audit exposes read access to the audit trail written by the
// other modules. Entries are append-only; this package never mutates them.
package audit

import (
	"encoding/json"
	"time"
)

// TimelineFilters narrows a timeline query. Zero values mean no filter.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	EntityID string
	Page     int
	PageSize int
}

// TimelineRow is one audit entry as returned to callers.
type TimelineRow struct {
	At       time.Time       `json:"at"`
	Actor    string          `json:"actor"`
	Action   string          `json:"action"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// PagingInfo reports the window a Result covers.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result is a timeline page plus its paging metadata.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
