package yolobridge

import (
	"errors"
	"fmt"

	"github.com/swdee/go-yolobridge/wire"
)

// state errors
var (
	// ErrNoViewAttached is returned by SwitchModel when the predictor has
	// not been bound to a live view
	ErrNoViewAttached = errors.New("no view attached, bind a view before switching models")

	// ErrDisposed is returned when calling a predictor after Dispose
	ErrDisposed = errors.New("predictor has been disposed")
)

// Error is implemented by every typed failure this package raises from
// engine calls, so callers can match the whole taxonomy at once with
// errors.As.
type Error interface {
	error
	// ErrorCode returns the engine error code behind this failure, or
	// the empty string for client side validation failures
	ErrorCode() string
}

// ModelLoadingError indicates a model could not be loaded or switched:
// the file is missing or malformed, or the requested task is not
// supported by it.
type ModelLoadingError struct {
	// Path is the model path the operation was attempted with
	Path string
	// Task is the requested task type
	Task Task
	// Code is the engine error code, empty for client side failures
	Code string
	// Message describes the failure
	Message string

	err error
}

func (e *ModelLoadingError) Error() string {
	return e.Message
}

func (e *ModelLoadingError) ErrorCode() string {
	return e.Code
}

func (e *ModelLoadingError) Unwrap() error {
	return e.err
}

// ModelNotLoadedError indicates predict was invoked before a successful
// loadModel.
type ModelNotLoadedError struct {
	Message string
}

func (e *ModelNotLoadedError) Error() string {
	return e.Message
}

func (e *ModelNotLoadedError) ErrorCode() string {
	return wire.CodeModelNotLoaded
}

// InvalidInputError indicates a caller supplied argument was rejected,
// either client side before any engine call or by the engine itself.
type InvalidInputError struct {
	// Code is the engine error code, empty for client side validation
	Code string
	// Message describes the rejected input
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

func (e *InvalidInputError) ErrorCode() string {
	return e.Code
}

// InferenceError indicates the engine call itself failed for a reason
// that is neither a missing model nor bad input, including any engine
// error code this package does not recognize.
type InferenceError struct {
	// Code is the engine error code, empty for non coded failures
	Code string
	// Message describes the failure
	Message string

	err error
}

func (e *InferenceError) Error() string {
	return e.Message
}

func (e *InferenceError) ErrorCode() string {
	return e.Code
}

func (e *InferenceError) Unwrap() error {
	return e.err
}

// describe appends the engine supplied message to a template prefix
func describe(prefix, msg string) string {

	if msg == "" {
		return prefix
	}

	return prefix + ": " + msg
}

// mapLoadError translates a failure from loadModel or setModel into the
// typed taxonomy. Unrecognized codes and non coded failures still
// surface as a ModelLoadingError, never as a raw transport error.
func mapLoadError(err error, path string, task Task) error {

	var ce *wire.CodedError

	if !errors.As(err, &ce) {
		return &ModelLoadingError{
			Path:    path,
			Task:    task,
			Message: describe("unclassified error loading model", err.Error()),
			err:     err,
		}
	}

	le := &ModelLoadingError{Path: path, Task: task, Code: ce.Code, err: ce}

	switch ce.Code {
	case wire.CodeModelNotFound:
		le.Message = describe(
			fmt.Sprintf("model file not found at %s", path), ce.Message)

	case wire.CodeInvalidModel:
		le.Message = describe(
			fmt.Sprintf("invalid model format at %s", path), ce.Message)

	case wire.CodeUnsupportedTask:
		le.Message = describe(
			fmt.Sprintf("unsupported task %q for model %s", task, path),
			ce.Message)

	case wire.CodeModelFileError:
		le.Message = describe(
			fmt.Sprintf("error reading model file at %s", path), ce.Message)

	default:
		le.Message = describe("error loading model", ce.Message)
	}

	return le
}

// mapPredictError translates a failure from a prediction call into the
// typed taxonomy. Unrecognized codes and non coded failures surface as
// an InferenceError carrying the original message.
func mapPredictError(err error) error {

	var ce *wire.CodedError

	if !errors.As(err, &ce) {
		return &InferenceError{
			Message: describe("unclassified error during inference", err.Error()),
			err:     err,
		}
	}

	switch ce.Code {
	case wire.CodeModelNotLoaded:
		return &ModelNotLoadedError{
			Message: describe("model has not been loaded, call LoadModel first",
				ce.Message),
		}

	case wire.CodeInvalidImage:
		return &InvalidInputError{
			Code:    ce.Code,
			Message: describe("invalid image data", ce.Message),
		}

	case wire.CodeImageLoadError:
		return &InvalidInputError{
			Code:    ce.Code,
			Message: describe("error loading image", ce.Message),
		}

	case wire.CodeInferenceError:
		return &InferenceError{
			Code:    ce.Code,
			Message: describe("error during inference", ce.Message),
			err:     ce,
		}
	}

	return &InferenceError{
		Code:    ce.Code,
		Message: describe(fmt.Sprintf("unrecognized engine error %s", ce.Code),
			ce.Message),
		err: ce,
	}
}
