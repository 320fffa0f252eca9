package models

import "fmt"

// Diagnostic is one problem found in an uploaded file. Line is 1-based and counts the header.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	switch {
	case d.Line <= 0:
		return d.Message
	case d.Column == "":
		return fmt.Sprintf("Line %d: %s", d.Line, d.Message)
	default:
		return fmt.Sprintf("Line %d, %s: %s", d.Line, d.Column, d.Message)
	}
}

// ValidationResult is the outcome of the structural validation of a whole file.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []Diagnostic `json:"errors"`
}

// Messages renders every diagnostic for display, in file order.
func (v ValidationResult) Messages() []string {
	out := make([]string, 0, len(v.Errors))
	for _, d := range v.Errors {
		out = append(out, d.String())
	}
	return out
}

// IngestionResult reports what an upload did to the ledger.
type IngestionResult struct {
	UploadID   string       `json:"upload_id,omitempty"`
	Accepted   int          `json:"accepted"`
	Duplicates int          `json:"duplicates"`
	Rejected   []Diagnostic `json:"rejected,omitempty"` // only with the skip row policy
}

// UploadRecord is the audit row stored alongside each committed batch.
type UploadRecord struct {
	ID         string
	OwnerID    int64
	Filename   string
	FileSize   int64
	Accepted   int
	Duplicates int
}
