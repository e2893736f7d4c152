package store

import "time"

// StatusFleeting is the status assigned to new captures without one.
const StatusFleeting = "fleeting"

// Note is a user-authored capture.
type Note struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	TypeID    *int64    `json:"capture_type_id"`
	StatusID  *int64    `json:"capture_status_id"`
	ProjectID *int64    `json:"project_id"`
	GraphX    *float64  `json:"graph_x"`
	GraphY    *float64  `json:"graph_y"`
	ProjectX  *float64  `json:"project_x"`
	ProjectY  *float64  `json:"project_y"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnrichedFields is the partial update applied by metadata enrichment. Nil
// fields are left untouched.
type EnrichedFields struct {
	Title  *string
	Slug   *string
	TypeID *int64
}

// Empty reports whether no field is set.
func (f EnrichedFields) Empty() bool {
	return f.Title == nil && f.Slug == nil && f.TypeID == nil
}

// Link is a directed edge derived from a reference in the source's content.
type Link struct {
	ID        int64     `json:"id"`
	SourceID  int64     `json:"source_id"`
	TargetID  int64     `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Tag struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
}

// Project groups captures and owns a layout rectangle on the global graph.
type Project struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GraphX      *float64  `json:"graph_x"`
	GraphY      *float64  `json:"graph_y"`
	GraphWidth  *float64  `json:"graph_width"`
	GraphHeight *float64  `json:"graph_height"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CaptureType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

type CaptureStatus struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Job is a persisted enrichment job record.
type Job struct {
	ID              string
	NoteID          int64
	WantTitle       bool
	WantTags        bool
	WantType        bool
	State           string
	Attempts        int
	LastError       string
	ContentChecksum string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
