package spmedge

import (
	"fmt"
	"time"
)

// Stage is one step of the document pipeline.
type Stage string

const (
	StageInput   Stage = "input"
	StageLoad    Stage = "load"
	StageClean   Stage = "clean"
	StageProcess Stage = "process"
	StageIndex   Stage = "index"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageInput, StageLoad, StageClean, StageProcess, StageIndex}

// Previous returns the stage that feeds s, or "" for the first stage.
func (s Stage) Previous() Stage {
	for i, st := range Stages {
		if st == s && i > 0 {
			return Stages[i-1]
		}
	}
	return ""
}

// Next returns the stage fed by s, or "" for the last stage.
func (s Stage) Next() Stage {
	for i, st := range Stages {
		if st == s && i < len(Stages)-1 {
			return Stages[i+1]
		}
	}
	return ""
}

// Valid reports whether s names a known pipeline stage.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

// ParseStage converts a user-supplied stage name.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}

// Status values shared by pipeline records and batches.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPartial    Status = "partial" // batches only
)

// Document is a file under pipeline control.
type Document struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`          // sanitized
	OriginalName string         `json:"original_name"` // as received
	TypeID       string         `json:"type_id"`
	BatchID      string         `json:"batch_id"`
	Size         int64          `json:"size"`
	FileType     string         `json:"file_type"` // lowercased extension, no dot
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DocumentType is a named category carrying the AI prompt and schema
// used by the clean and process stages.
type DocumentType struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"` // e.g. "comp_plan"
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Batch groups documents registered together at the input stage.
type Batch struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	DocumentCount int        `json:"document_count"`
	Status        Status     `json:"status"`
	Stage         Stage      `json:"stage"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// PipelineRecord is the (document, stage) → status row in the state store.
type PipelineRecord struct {
	DocumentID string    `json:"document_id"`
	Stage      Stage     `json:"stage"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	BatchID    string    `json:"batch_id"`
	TypeID     string    `json:"type_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RuleKind distinguishes regex cleaning rules from literal ones.
type RuleKind string

const (
	RuleRegex RuleKind = "regex"
	RuleExact RuleKind = "exact"
)

// RuleContextAll applies a cleaning rule to every section kind.
const RuleContextAll = "all"

// CleaningRule rewrites text within matching sections. Lower Priority runs
// first; ties break on insertion order. Context is "all" or a section kind.
// Condition is an optional expr-lang predicate over section attributes.
type CleaningRule struct {
	ID          int64    `json:"id"`
	TypeID      string   `json:"type_id,omitempty"` // empty = every document type
	Pattern     string   `json:"pattern"`
	Replacement string   `json:"replacement"`
	Kind        RuleKind `json:"kind"`
	Priority    int      `json:"priority"`
	Context     string   `json:"context"`
	Condition   string   `json:"condition,omitempty"`
	Active      bool     `json:"active"`
}

// SectionKind classifies a structural unit found by the cleaner.
type SectionKind string

const (
	SectionHeader  SectionKind = "header"
	SectionBody    SectionKind = "body"
	SectionTable   SectionKind = "table"
	SectionFormula SectionKind = "formula"
	SectionFooter  SectionKind = "footer"
)

// SPM component categories recognized by the cleaner.
const (
	CategoryPlanInfo           = "plan_info"
	CategoryPlanSummary        = "plan_summary"
	CategoryEffectiveDates     = "effective_dates"
	CategoryPayoutSchedule     = "payout_schedule"
	CategorySpecialProvisions  = "special_provisions"
	CategoryTermsAndConditions = "terms_and_conditions"
	CategoryCompComponents     = "compensation_components"
)

// SPMCategories lists every recognized category.
var SPMCategories = []string{
	CategoryPlanInfo,
	CategoryPlanSummary,
	CategoryEffectiveDates,
	CategoryPayoutSchedule,
	CategorySpecialProvisions,
	CategoryTermsAndConditions,
	CategoryCompComponents,
}

// Section is a node in the cleaner's section forest. Children are fixed
// after the forest is built; cleaning writes Cleaned, never Raw.
type Section struct {
	Kind     SectionKind `json:"kind"`
	Level    int         `json:"level"` // 1-3 for headers, 0 otherwise
	Category string      `json:"category,omitempty"`
	Raw      string      `json:"raw"`
	Cleaned  string      `json:"cleaned"`
	Children []*Section  `json:"children,omitempty"`
}
