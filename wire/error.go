package wire

import "fmt"

// error code strings produced by the engine.  Any other code is still
// surfaced to the caller, these are just the ones with dedicated handling
const (
	CodeModelNotFound   = "MODEL_NOT_FOUND"
	CodeInvalidModel    = "INVALID_MODEL"
	CodeUnsupportedTask = "UNSUPPORTED_TASK"
	CodeModelFileError  = "MODEL_FILE_ERROR"
	CodeModelNotLoaded  = "MODEL_NOT_LOADED"
	CodeInvalidImage    = "INVALID_IMAGE"
	CodeImageLoadError  = "IMAGE_LOAD_ERROR"
	CodeInferenceError  = "INFERENCE_ERROR"
)

// CodedError is a failure reported by the engine as a short string code plus
// a human readable message.  Transports return it unchanged, mapping codes to
// the typed error kinds happens at the facade boundary
type CodedError struct {
	// Code is the short error code string, ie: MODEL_NOT_FOUND
	Code string
	// Message is the human readable description of the failure
	Message string
	// Details is optional extra data attached by the engine
	Details any
}

// Error returns the code and message as a single string
func (e *CodedError) Error() string {

	if e.Message == "" {
		return e.Code
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
