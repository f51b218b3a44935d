package gerror

import (
	"errors"
	"net/http"
)

const (
	ErrCodeInternal             Code = "Internal"
	ErrCodeValidationFailed     Code = "ValidationFailed"
	ErrCodeNotFound             Code = "NotFound"
	ErrCodeAlreadyExists        Code = "AlreadyExists"
	ErrCodeTimeout              Code = "Timeout"
	ErrCodeWorkflowNotTriggered Code = "WorkflowNotTriggered"
	ErrCodeNoMatchingRunner     Code = "NoMatchingRunner"
	ErrCodeStepFailed           Code = "StepFailed"
	ErrCodeCanceled             Code = "Canceled"
)

// ToError locates an Error in the provided error chain and returns it if it
// matches the provided code. Otherwise, returns nil.
func ToError(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	var gErr Error
	if errors.As(err, &gErr) && gErr.Code() == code {
		return &gErr
	}
	return nil
}

func NewErrInternal() Error {
	return NewError(
		"An internal error occurred",
		AudienceExternal,
		ErrCodeInternal,
		http.StatusInternalServerError,
		nil,
	)
}

func ToInternal(err error) *Error {
	return ToError(err, ErrCodeInternal)
}

func IsInternal(err error) bool {
	return ToInternal(err) != nil
}

func NewErrValidationFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeValidationFailed, http.StatusBadRequest, nil)
}

func ToValidationFailed(err error) *Error {
	return ToError(err, ErrCodeValidationFailed)
}

func IsValidationFailed(err error) bool {
	return ToValidationFailed(err) != nil
}

func NewErrNotFound(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeNotFound, http.StatusNotFound, nil)
}

func ToNotFound(err error) *Error {
	return ToError(err, ErrCodeNotFound)
}

func IsNotFound(err error) bool {
	return ToNotFound(err) != nil
}

func NewErrAlreadyExists(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeAlreadyExists, http.StatusConflict, nil)
}

func ToAlreadyExists(err error) *Error {
	return ToError(err, ErrCodeAlreadyExists)
}

func IsAlreadyExists(err error) bool {
	return ToAlreadyExists(err) != nil
}

func NewErrTimeout(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeTimeout, http.StatusRequestTimeout, nil)
}

func ToTimeout(err error) *Error {
	return ToError(err, ErrCodeTimeout)
}

func IsTimeout(err error) bool {
	return ToTimeout(err) != nil
}

// NewErrWorkflowNotTriggered is returned when an event does not match any of
// the trigger rules declared by a workflow, so no build was created.
func NewErrWorkflowNotTriggered(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeWorkflowNotTriggered, http.StatusUnprocessableEntity, nil)
}

func ToWorkflowNotTriggered(err error) *Error {
	return ToError(err, ErrCodeWorkflowNotTriggered)
}

func IsWorkflowNotTriggered(err error) bool {
	return ToWorkflowNotTriggered(err) != nil
}

// NewErrNoMatchingRunner is returned when a job requires labels the runner
// does not have.
func NewErrNoMatchingRunner(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeNoMatchingRunner, http.StatusUnprocessableEntity, nil)
}

func ToNoMatchingRunner(err error) *Error {
	return ToError(err, ErrCodeNoMatchingRunner)
}

func IsNoMatchingRunner(err error) bool {
	return ToNoMatchingRunner(err) != nil
}

func NewErrStepFailed(message string, err error) Error {
	return NewError(message, AudienceExternal, ErrCodeStepFailed, http.StatusInternalServerError, err)
}

func ToStepFailed(err error) *Error {
	return ToError(err, ErrCodeStepFailed)
}

func IsStepFailed(err error) bool {
	return ToStepFailed(err) != nil
}

func NewErrCanceled(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeCanceled, http.StatusConflict, nil)
}

func ToCanceled(err error) *Error {
	return ToError(err, ErrCodeCanceled)
}

func IsCanceled(err error) bool {
	return ToCanceled(err) != nil
}
