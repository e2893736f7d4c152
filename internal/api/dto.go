package api

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettel/internal/noteservice"
	"github.com/starford/zettel/internal/store"
)

// Field limits for request bodies.
const (
	maxTitleLen       = 255
	maxProjectNameLen = 100
	maxDescriptionLen = 2000
)

// CaptureDetail is the full capture response (aliased from the domain layer).
type CaptureDetail = noteservice.NoteDetail

// CreateCaptureRequest is the request body for creating a capture.
type CreateCaptureRequest struct {
	Content         string   `json:"content" example:"Meeting notes\n[[Project Kickoff]]"`
	Title           string   `json:"title" example:"Meeting notes"`
	Tags            []string `json:"tags" example:"work,meetings"`
	CaptureTypeID   *int64   `json:"capture_type_id"`
	CaptureStatusID *int64   `json:"capture_status_id"`
	ProjectID       *int64   `json:"project_id"`
	GraphX          *float64 `json:"graph_x"`
	GraphY          *float64 `json:"graph_y"`
}

func (r *CreateCaptureRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.Title, validation.RuneLength(0, maxTitleLen)),
		validation.Field(&r.Tags, validation.Each(validation.RuneLength(0, store.MaxTagRunes))),
	)
}

func (r *CreateCaptureRequest) input() noteservice.CreateInput {
	return noteservice.CreateInput{
		Content:   r.Content,
		Title:     r.Title,
		Tags:      r.Tags,
		TypeID:    r.CaptureTypeID,
		StatusID:  r.CaptureStatusID,
		ProjectID: r.ProjectID,
		GraphX:    r.GraphX,
		GraphY:    r.GraphY,
	}
}

// nullableID tells an absent key apart from an explicit null.
type nullableID struct {
	Set   bool
	Value *int64
}

func (n *nullableID) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n nullableID) optional() noteservice.OptionalID {
	return noteservice.OptionalID{Set: n.Set, Value: n.Value}
}

// UpdateCaptureRequest is the request body for updating a capture. Absent
// keys leave the field unchanged; a null id clears the reference.
type UpdateCaptureRequest struct {
	Content         *string    `json:"content"`
	Title           *string    `json:"title"`
	Tags            []string   `json:"tags"`
	CaptureTypeID   nullableID `json:"capture_type_id"`
	CaptureStatusID nullableID `json:"capture_status_id"`
	ProjectID       nullableID `json:"project_id"`
}

func (r *UpdateCaptureRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NilOrNotEmpty),
		validation.Field(&r.Title, validation.RuneLength(0, maxTitleLen)),
		validation.Field(&r.Tags, validation.Each(validation.RuneLength(0, store.MaxTagRunes))),
	)
}

func (r *UpdateCaptureRequest) input(ifMatch string) noteservice.UpdateInput {
	return noteservice.UpdateInput{
		Content:   r.Content,
		Title:     r.Title,
		Tags:      r.Tags,
		TypeID:    r.CaptureTypeID.optional(),
		StatusID:  r.CaptureStatusID.optional(),
		ProjectID: r.ProjectID.optional(),
		IfMatch:   ifMatch,
	}
}

// PositionRequest is a graph coordinate.
type PositionRequest struct {
	X *float64 `json:"x" example:"200"`
	Y *float64 `json:"y" example:"0"`
}

func (r *PositionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.X, validation.NotNil),
		validation.Field(&r.Y, validation.NotNil),
	)
}

// CreateLinkRequest asks for an explicit edge between two captures.
type CreateLinkRequest struct {
	SourceCaptureID int64 `json:"source_capture_id"`
	TargetCaptureID int64 `json:"target_capture_id"`
}

func (r *CreateLinkRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SourceCaptureID, validation.Required),
		validation.Field(&r.TargetCaptureID, validation.Required),
	)
}

// LinkResponse is returned by the explicit link endpoint.
type LinkResponse struct {
	Message       string         `json:"message"`
	Link          *store.Link    `json:"link"`
	SourceCapture *CaptureDetail `json:"source_capture"`
}

// PositionResponse is returned by both position endpoints.
type PositionResponse struct {
	Message string      `json:"message"`
	Capture *store.Note `json:"capture"`
}

// ProjectRequest is the body for creating or updating a project.
type ProjectRequest struct {
	Name        *string `json:"name" example:"Garden"`
	Description *string `json:"description" example:"Vegetable beds and seeds"`

	requireName bool
}

func (r *ProjectRequest) Validate() error {
	nameRules := []validation.Rule{validation.NilOrNotEmpty, validation.RuneLength(0, maxProjectNameLen)}
	if r.requireName {
		nameRules = append(nameRules, validation.Required)
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, nameRules...),
		validation.Field(&r.Description, validation.RuneLength(0, maxDescriptionLen)),
	)
}

func (r *ProjectRequest) input() noteservice.ProjectInput {
	return noteservice.ProjectInput{Name: r.Name, Description: r.Description}
}

// LayoutRequest is a project's rectangle on the graph.
type LayoutRequest struct {
	GraphX      *float64 `json:"graph_x"`
	GraphY      *float64 `json:"graph_y"`
	GraphWidth  *float64 `json:"graph_width"`
	GraphHeight *float64 `json:"graph_height"`
}

func (r *LayoutRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.GraphX, validation.NotNil),
		validation.Field(&r.GraphY, validation.NotNil),
		validation.Field(&r.GraphWidth, validation.NotNil, validation.Min(0.0)),
		validation.Field(&r.GraphHeight, validation.NotNil, validation.Min(0.0)),
	)
}

func (r *LayoutRequest) input() noteservice.LayoutInput {
	return noteservice.LayoutInput{X: *r.GraphX, Y: *r.GraphY, Width: *r.GraphWidth, Height: *r.GraphHeight}
}
