package extraction

import (
	"errors"
	"fmt"
)

// Result is the envelope returned by every extraction path.
// ExtractedData is set iff Success; Error is set iff !Success.
type Result struct {
	Success       bool   `json:"success"`
	Filename      string `json:"filename"`
	ExtractedData any    `json:"extracted_data,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message"`

	// Err keeps the underlying error for errors.Is checks
	Err error `json:"-"`
	// Provider names the backend that produced the result
	Provider string `json:"-"`
}

func succeeded(filename string, data any, message string) Result {
	return Result{
		Success:       true,
		Filename:      filename,
		ExtractedData: data,
		Message:       message,
	}
}

func failed(filename string, err error, message string) Result {
	if err == nil {
		err = errors.New("extraction failed")
	}
	return Result{
		Success:  false,
		Filename: filename,
		Error:    err.Error(),
		Message:  message,
		Err:      err,
	}
}

func failedf(filename string, err error, format string, args ...any) Result {
	return failed(filename, err, fmt.Sprintf(format, args...))
}
