package grading

import "fmt"

// ConfigurationError reports grading configuration an operation cannot run without,
// such as a missing scale or a missing calendar term.
type ConfigurationError struct {
	Resource string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("grading configuration error: %s: %s", e.Resource, e.Reason)
}

// DataError reports a malformed assessment score.
type DataError struct {
	SubjectID string
	Component AssessmentComponent
	Reason    string
}

func (e *DataError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("subject %s component %s: %s", e.SubjectID, e.Component, e.Reason)
	}
	return fmt.Sprintf("subject %s: %s", e.SubjectID, e.Reason)
}
