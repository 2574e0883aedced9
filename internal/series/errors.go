package series

import "fmt"

// DataAlignmentError reports inputs that cannot be aligned: no overlapping
// dates, a missing column or an unordered index. It is fatal at load time.
type DataAlignmentError struct {
	Series string
	Column string
	Reason string
	Err    error
}

func (e *DataAlignmentError) Error() string {
	msg := "data alignment"
	if e.Series != "" {
		msg += fmt.Sprintf(" [%s]", e.Series)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataAlignmentError) Unwrap() error { return e.Err }
