package models

import (
	"encoding/json"
	"fmt"
)

// UploadDestination is the pre-signed storage target handed out by the API.
type UploadDestination struct {
	Url string `json:"url"`
	Key string `json:"key"`
}

// UploadResult is what the storage host answers after a successful PUT.
type UploadResult struct {
	UfsUrl string `json:"ufsUrl"`
}

// ExtractionRequest is the body posted to the image-to-text endpoint.
// OutputStructure holds already compacted JSON and is sent as a string.
type ExtractionRequest struct {
	ImageUrl        string `json:"imageUrl"`
	OutputType      string `json:"outputType"`
	Description     string `json:"description,omitempty"`
	OutputStructure string `json:"outputStructure,omitempty"`
}

// ExtractionResult is the parsed answer of the image-to-text endpoint.
// JobId, CreditsRemaining and Message are filled only when the service sends
// them with the expected type; otherwise they stay in Extra untouched, along
// with every key the client does not know about.
type ExtractionResult struct {
	Success          bool                       `json:"success"`
	Text             string                     `json:"text"`
	Data             json.RawMessage            `json:"data,omitempty"`
	JobId            string                     `json:"jobId,omitempty"`
	CreditsRemaining *float64                   `json:"creditsRemaining,omitempty"`
	Message          string                     `json:"message,omitempty"`
	Extra            map[string]json.RawMessage `json:"-"`

	successSet bool
}

var knownResultKeys = map[string]bool{
	"success":          true,
	"text":             true,
	"data":             true,
	"jobId":            true,
	"creditsRemaining": true,
	"message":          true,
}

// ExplicitFailure reports whether the service answered with "success": false.
// A body without a success key is not a failure.
func (r *ExtractionResult) ExplicitFailure() bool {
	return r.successSet && !r.Success
}

// MessageText returns the service message, falling back to its raw JSON
// when it was not a string.
func (r *ExtractionResult) MessageText() string {
	if r.Message != "" {
		return r.Message
	}
	if raw, ok := r.Extra["message"]; ok && string(raw) != "null" {
		return string(raw)
	}
	return ""
}

func (r *ExtractionResult) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*r = ExtractionResult{}

	if v, ok := raw["success"]; ok {
		if err := json.Unmarshal(v, &r.Success); err != nil {
			return fmt.Errorf("decode success: %w", err)
		}
		r.successSet = string(v) != "null"
	}
	if v, ok := raw["text"]; ok {
		if err := json.Unmarshal(v, &r.Text); err != nil {
			return fmt.Errorf("decode text: %w", err)
		}
	}
	if v, ok := raw["data"]; ok {
		r.Data = v
	}

	for k, v := range raw {
		switch k {
		case "success", "text", "data":
			continue
		case "jobId":
			if json.Unmarshal(v, &r.JobId) == nil {
				continue
			}
			r.JobId = ""
		case "creditsRemaining":
			if json.Unmarshal(v, &r.CreditsRemaining) == nil {
				continue
			}
			r.CreditsRemaining = nil
		case "message":
			if json.Unmarshal(v, &r.Message) == nil {
				continue
			}
			r.Message = ""
		}
		r.keep(k, v)
	}
	return nil
}

func (r *ExtractionResult) keep(k string, v json.RawMessage) {
	if r.Extra == nil {
		r.Extra = make(map[string]json.RawMessage)
	}
	r.Extra[k] = v
}

func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	type plain ExtractionResult
	known, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(r.Extra)+len(knownResultKeys))
	for k, v := range r.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, fmt.Errorf("merge extra fields: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
