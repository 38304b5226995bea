package logic

import (
	"errors"
	"fmt"

	"ImageToText/models"
)

// Phases of a Process call, carried by HTTPError and TransportError.
const (
	PhaseUploadURL  = "get-upload-url"
	PhaseUpload     = "upload"
	PhaseExtraction = "image-to-text"
)

var (
	ErrMissingAPIKey          = errors.New("api key is required")
	ErrFileNotFound           = errors.New("file not found")
	ErrInvalidOutputStructure = errors.New("output structure is not valid JSON")
	ErrMissingUploadField     = errors.New("response is missing a required field")
	ErrMalformedResponse      = errors.New("response is not valid JSON")
)

// HTTPError is returned when a call completes with a non-2xx status.
type HTTPError struct {
	Phase      string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// TransportError is returned when a call never produced an HTTP response
// (dns, connection reset, timeout, cancelled context).
type TransportError struct {
	Phase string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProcessingError is returned when the service answers 2xx with "success": false.
type ProcessingError struct {
	Result *models.ExtractionResult
	Body   string
}

func (e *ProcessingError) Error() string {
	if e.Result != nil {
		if msg := e.Result.MessageText(); msg != "" {
			return fmt.Sprintf("processing failed: %s", msg)
		}
	}
	return fmt.Sprintf("processing failed: %s", e.Body)
}
