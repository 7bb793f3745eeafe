package exerrors

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Conversion errors. Every error surfaced by the pipeline is marked with one
// of these, so callers match with errors.Is regardless of wrapping.
var (
	ErrMalformedTrace      = errors.New("E1|MalformedTrace: The captured slice is missing a required marker.")
	ErrExternalToolFailure = errors.New("E2|ExternalToolFailure: An external process could not start or exited non-zero.")
	ErrConfigConflict      = errors.New("E3|ConfigurationConflict: Conflicting or invalid conversion options.")
	ErrChainBroken         = errors.New("E4|ChainBroken: Section call chain has a missing or duplicated ordinal.")
	ErrArtifactContract    = errors.New("E5|ArtifactContract: Linked artifact does not expose the expected symbols.")
)

var kinds = []error{
	ErrMalformedTrace,
	ErrExternalToolFailure,
	ErrConfigConflict,
	ErrChainBroken,
	ErrArtifactContract,
}

func MalformedTrace(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedTrace)
}

func ConfigConflict(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfigConflict)
}

func ChainBroken(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrChainBroken)
}

func ArtifactContract(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrArtifactContract)
}

// ExternalTool marks err as a tool failure. stderr, when present, is attached
// as a detail so it shows up in verbose formatting without cluttering Error().
func ExternalTool(err error, stderr string, format string, args ...interface{}) error {
	wrapped := errors.Wrapf(err, format, args...)
	if s := strings.TrimSpace(stderr); s != "" {
		wrapped = errors.WithDetail(wrapped, s)
	}
	return errors.Mark(wrapped, ErrExternalToolFailure)
}

// Kind returns the catalogue sentinel err was marked with, or nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Details returns the details attached along the error chain (tool stderr).
func Details(err error) []string {
	return errors.GetAllDetails(err)
}

// GetErrorName extracts the error name, preferring the catalogue entry err
// was marked with.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	if k := Kind(err); k != nil {
		err = k
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code ("E1".."E5").
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if k := Kind(err); k != nil {
		err = k
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}
