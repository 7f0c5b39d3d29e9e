// Package task defines the visualization task domain entities.
package task

// Type classifies a visualization request by which optional reference
// inputs accompany it.
type Type string

const (
	// TypePlainQuery is a bare natural-language request (type A).
	TypePlainQuery Type = "plain_query"
	// TypeImageRef carries a reference image to match stylistically (type B).
	TypeImageRef Type = "image_ref"
	// TypeCodeRef carries reference code to adapt (type C).
	TypeCodeRef Type = "code_ref"
	// TypeModify carries existing code to be modified in place (type D).
	TypeModify Type = "modify"
)

// Task is one immutable unit of visualization work.
type Task struct {
	ID             string `json:"id"`
	Type           Type   `json:"type,omitempty"`
	Request        string `json:"request"`
	Database       string `json:"database"`
	ReferenceImage string `json:"reference_image,omitempty"` // path to a PNG
	ReferenceCode  string `json:"reference_code,omitempty"`
	ExistingCode   string `json:"existing_code,omitempty"`
}

// Classify determines the task type from which optional inputs are
// present. Existing code wins over references: a modification request
// operates on the supplied code regardless of other attachments.
func Classify(t Task) Type {
	switch {
	case t.ExistingCode != "":
		return TypeModify
	case t.ReferenceImage != "":
		return TypeImageRef
	case t.ReferenceCode != "":
		return TypeCodeRef
	default:
		return TypePlainQuery
	}
}
