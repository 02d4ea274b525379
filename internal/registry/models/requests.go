package models

import (
	"fmt"
	"strings"
	"time"

	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	strutil "tracecore/pkg/platform/strings"
)

const (
	MaxBatchRegister    = 50
	MaxBatchCheckpoints = 20

	maxLocationLength = 256
	maxNoteLength     = 1024
	maxStatusLength   = 64
	maxMetadataLength = 512
)

// RegisterRequest describes a new entity.
type RegisterRequest struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	BatchKey    string    `json:"batch_key"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidUntil  time.Time `json:"valid_until"`
	Attributes  []string  `json:"attributes"`
	MetadataRef string    `json:"metadata_ref"`
}

// Normalize trims free text, lower-cases the type and de-duplicates attributes.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strutil.NormalizeLabel(r.Type)
	r.BatchKey = strings.TrimSpace(r.BatchKey)
	r.MetadataRef = strings.TrimSpace(r.MetadataRef)
	r.Attributes = strutil.DedupeAndTrim(r.Attributes)
}

// Validate normalizes the request and checks required fields and bounds.
func (r *RegisterRequest) Validate() error {
	r.Normalize()
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if len(r.Type) > MaxTypeLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("type must be %d characters or less", MaxTypeLength))
	}
	if r.BatchKey == "" {
		return dErrors.New(dErrors.CodeValidation, "batch_key is required")
	}
	if len(r.BatchKey) > MaxBatchKeyLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("batch_key must be %d characters or less", MaxBatchKeyLength))
	}
	if len(r.MetadataRef) > maxMetadataLength {
		return dErrors.New(dErrors.CodeValidation, "metadata_ref is too long")
	}
	if r.ValidFrom.IsZero() || r.ValidUntil.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "valid_from and valid_until are required")
	}
	if !r.ValidUntil.After(r.ValidFrom) {
		return dErrors.New(dErrors.CodeValidation, "valid_until must be after valid_from")
	}
	return nil
}

// BatchRegisterRequest wraps up to MaxBatchRegister registrations.
type BatchRegisterRequest struct {
	Items []RegisterRequest `json:"items"`
}

func (r *BatchRegisterRequest) Validate() error {
	if len(r.Items) == 0 || len(r.Items) > MaxBatchRegister {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("batch must contain 1 to %d items", MaxBatchRegister))
	}
	for i := range r.Items {
		if err := r.Items[i].Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("item %d", i))
		}
	}
	return nil
}

// CheckpointInput is the caller-supplied part of a checkpoint.
type CheckpointInput struct {
	Status      string       `json:"status"`
	Location    string       `json:"location"`
	Environment *Environment `json:"environment,omitempty"`
	Note        string       `json:"note"`
}

func (c *CheckpointInput) Normalize() {
	c.Status = strutil.NormalizeLabel(c.Status)
	c.Location = strings.TrimSpace(c.Location)
	c.Note = strings.TrimSpace(c.Note)
	if c.Environment != nil && *c.Environment == (Environment{}) {
		c.Environment = nil
	}
}

func (c *CheckpointInput) Validate() error {
	c.Normalize()
	if c.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	if len(c.Status) > maxStatusLength {
		return dErrors.New(dErrors.CodeValidation, "status is too long")
	}
	if len(c.Location) > maxLocationLength {
		return dErrors.New(dErrors.CodeValidation, "location is too long")
	}
	if len(c.Note) > maxNoteLength {
		return dErrors.New(dErrors.CodeValidation, "note is too long")
	}
	return c.Environment.validate()
}

func (e *Environment) validate() error {
	if e == nil {
		return nil
	}
	if e.Humidity != nil && (*e.Humidity < 0 || *e.Humidity > 100) {
		return dErrors.New(dErrors.CodeValidation, "humidity must be between 0 and 100")
	}
	if g := e.Coordinates; g != nil {
		if g.Lat < -90 || g.Lat > 90 || g.Lon < -180 || g.Lon > 180 {
			return dErrors.New(dErrors.CodeValidation, "coordinates are out of range")
		}
	}
	return nil
}

// BatchCheckpointRequest wraps up to MaxBatchCheckpoints inputs.
type BatchCheckpointRequest struct {
	Items []CheckpointInput `json:"items"`
}

func (r *BatchCheckpointRequest) Validate() error {
	if len(r.Items) == 0 || len(r.Items) > MaxBatchCheckpoints {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("batch must contain 1 to %d items", MaxBatchCheckpoints))
	}
	for i := range r.Items {
		if err := r.Items[i].Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("item %d", i))
		}
	}
	return nil
}

// UpdateRequest changes descriptive fields. Nil fields are left untouched.
type UpdateRequest struct {
	Name        *string    `json:"name,omitempty"`
	Type        *string    `json:"type,omitempty"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	Attributes  *[]string  `json:"attributes,omitempty"`
	MetadataRef *string    `json:"metadata_ref,omitempty"`
}

func (r *UpdateRequest) Validate() error {
	if r.Name == nil && r.Type == nil && r.ValidFrom == nil && r.ValidUntil == nil &&
		r.Attributes == nil && r.MetadataRef == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one field must be provided")
	}
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		if n == "" || len(n) > MaxNameLength {
			return dErrors.New(dErrors.CodeValidation, "name must be non-empty and at most 256 characters")
		}
		r.Name = &n
	}
	if r.Type != nil {
		t := strutil.NormalizeLabel(*r.Type)
		if t == "" || len(t) > MaxTypeLength {
			return dErrors.New(dErrors.CodeValidation, "type must be non-empty and at most 64 characters")
		}
		r.Type = &t
	}
	if r.Attributes != nil {
		a := strutil.DedupeAndTrim(*r.Attributes)
		r.Attributes = &a
	}
	if r.MetadataRef != nil {
		m := strings.TrimSpace(*r.MetadataRef)
		if len(m) > maxMetadataLength {
			return dErrors.New(dErrors.CodeValidation, "metadata_ref is too long")
		}
		r.MetadataRef = &m
	}
	if (r.ValidFrom != nil && r.ValidFrom.IsZero()) || (r.ValidUntil != nil && r.ValidUntil.IsZero()) {
		return dErrors.New(dErrors.CodeValidation, "validity dates cannot be zero")
	}
	return nil
}

// CheckpointEdit changes the free-text fields of a committed checkpoint.
type CheckpointEdit struct {
	Location *string `json:"location,omitempty"`
	Note     *string `json:"note,omitempty"`
}

func (e *CheckpointEdit) Validate() error {
	if e.Location == nil && e.Note == nil {
		return dErrors.New(dErrors.CodeValidation, "location or note must be provided")
	}
	if e.Location != nil {
		l := strings.TrimSpace(*e.Location)
		if len(l) > maxLocationLength {
			return dErrors.New(dErrors.CodeValidation, "location is too long")
		}
		e.Location = &l
	}
	if e.Note != nil {
		n := strings.TrimSpace(*e.Note)
		if len(n) > maxNoteLength {
			return dErrors.New(dErrors.CodeValidation, "note is too long")
		}
		e.Note = &n
	}
	return nil
}

// AddActorRequest names an actor to add to the authorization set.
type AddActorRequest struct {
	Actor string `json:"actor"`
}

func (r *AddActorRequest) Validate() error {
	_, err := id.ParseActorID(r.Actor)
	return err
}

// ChangedFields lists the JSON names of the fields the update sets.
func (r *UpdateRequest) ChangedFields() []string {
	var out []string
	if r.Name != nil {
		out = append(out, "name")
	}
	if r.Type != nil {
		out = append(out, "type")
	}
	if r.ValidFrom != nil {
		out = append(out, "valid_from")
	}
	if r.ValidUntil != nil {
		out = append(out, "valid_until")
	}
	if r.Attributes != nil {
		out = append(out, "attributes")
	}
	if r.MetadataRef != nil {
		out = append(out, "metadata_ref")
	}
	return out
}
