package sdfat

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseDriverError string

const rootError = baseDriverError("")

var ErrAlreadyInProgress = rootError.WithMessage("Operation already in progress")
var ErrArgumentOutOfRange = rootError.WithMessage("Numerical argument out of domain")
var ErrDirectoryNotEmpty = rootError.WithMessage("Directory not empty")
var ErrExists = rootError.WithMessage("File exists")
var ErrFileSystemCorrupted = rootError.WithMessage("Structure needs cleaning")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrInvalidFileSystem = rootError.WithMessage("Wrong medium type")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrIsADirectory = rootError.WithMessage("Is a directory")
var ErrNameTooLong = rootError.WithMessage("File name too long")
var ErrNoSpaceOnDevice = rootError.WithMessage("No space left on device")
var ErrNotADirectory = rootError.WithMessage("Not a directory")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrNotMounted = rootError.WithMessage("File system not mounted")
var ErrNotSupported = rootError.WithMessage("Operation not supported")
var ErrPermissionDenied = rootError.WithMessage("Permission denied")

// fatalErrors are the conditions after which the volume (or the driver value)
// can't be trusted anymore. Callers such as the CLI stop on these.
var fatalErrors = []error{
	ErrAlreadyInProgress,
	ErrFileSystemCorrupted,
	ErrInvalidFileSystem,
	ErrIOFailed,
	ErrNoSpaceOnDevice,
	ErrNotMounted,
}

// IsFatal reports whether err is (or wraps) one of the errors that leave the
// driver or the volume in a state where continuing makes no sense.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, fatal := range fatalErrors {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}

func (e baseDriverError) Error() string {
	return string(e)
}

func (e baseDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       message,
		originalError: e,
	}
}

func (e baseDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
