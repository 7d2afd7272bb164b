package bus

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response kinds form a closed set; anything else is rejected on decode.
const (
	KindFile  = "file"
	KindError = "error"
)

// Request is the envelope a frontend enqueues for the render worker.
//
// Opaque is chosen by the frontend and echoed verbatim in the response; the
// worker never inspects it. Identifier uniquely names sender+message within
// the medium and is used for auditing only.
type Request struct {
	URL               string          `json:"url"`
	Medium            string          `json:"medium"`
	Opaque            json.RawMessage `json:"opaque"`
	IdentifierVersion int             `json:"identifier_version"`
	Identifier        json.RawMessage `json:"identifier"`
}

// Validate reports whether the request is well-formed per the wire protocol.
func (r *Request) Validate() error {
	if !strings.HasPrefix(r.URL, "http://") && !strings.HasPrefix(r.URL, "https://") {
		return fmt.Errorf("url must start with http:// or https://")
	}
	if r.Medium == "" {
		return fmt.Errorf("medium must not be empty")
	}
	if r.IdentifierVersion <= 0 {
		return fmt.Errorf("identifier_version must be positive")
	}
	if len(r.Identifier) == 0 {
		return fmt.Errorf("identifier must not be empty")
	}
	return nil
}

// FileInfo describes a rendered or downloaded artefact on disk.
type FileInfo struct {
	Title     string `json:"title"`
	Path      string `json:"path"`
	Extension string `json:"extension"`
	MIME      string `json:"mime"`
	Size      int64  `json:"size"`
}

// ErrorInfo carries the user-facing failure message.
type ErrorInfo struct {
	Message string `json:"message"`
}

// Response is the envelope the worker pushes back to the originating
// frontend. Exactly one of File and Error is set, matching Kind.
type Response struct {
	Kind   string          `json:"kind"`
	Opaque json.RawMessage `json:"opaque"`
	URL    string          `json:"url"`
	File   *FileInfo       `json:"file,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// Validate enforces the tagged-union shape of the response.
func (r *Response) Validate() error {
	switch r.Kind {
	case KindFile:
		if r.File == nil || r.Error != nil {
			return fmt.Errorf("kind %q requires file and forbids error", r.Kind)
		}
	case KindError:
		if r.Error == nil || r.File != nil {
			return fmt.Errorf("kind %q requires error and forbids file", r.Kind)
		}
	default:
		return fmt.Errorf("unknown response kind %q", r.Kind)
	}
	return nil
}
