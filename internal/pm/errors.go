package pm

import (
	"errors"
	"fmt"
)

// Error represents a failure detected by the synchronization core.
//
// Errors are always surfaced synchronously to the caller of the operation
// that detected them. The core never retries internally.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ModelID identifies the affected presentation model, if any.
	ModelID string

	// Property identifies the affected attribute or list, if any.
	Property string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes core errors.
type ErrorCode string

const (
	// ErrCodeBeanDefinition indicates an unknown or invalid bean type, or an
	// argument that is not a managed bean.
	ErrCodeBeanDefinition ErrorCode = "BEAN_DEFINITION"

	// ErrCodeDuplicateID indicates a store-level id collision.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeUnsupportedType indicates no converter exists for a value type.
	ErrCodeUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"

	// ErrCodeReferenceResolution indicates an inbound bean id is unknown locally.
	ErrCodeReferenceResolution ErrorCode = "REFERENCE_RESOLUTION"

	// ErrCodeNullArgument indicates a required argument was nil.
	ErrCodeNullArgument ErrorCode = "NULL_ARGUMENT"

	// ErrCodeUnknownProperty indicates an attribute or list name is not declared.
	ErrCodeUnknownProperty ErrorCode = "UNKNOWN_PROPERTY"

	// ErrCodeUnknownModel indicates a model id is not present in the store.
	ErrCodeUnknownModel ErrorCode = "UNKNOWN_MODEL"

	// ErrCodeIndexOutOfRange indicates a list index or range is invalid.
	ErrCodeIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeSchemaMismatch indicates the two sides disagree on a bean type.
	ErrCodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"

	// ErrCodeTypeMismatch indicates a value does not match its declared type.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ModelID != "" && e.Property != "" {
		return fmt.Sprintf("%s: %s (model=%s, property=%s)", e.Code, e.Message, e.ModelID, e.Property)
	}
	if e.ModelID != "" {
		return fmt.Sprintf("%s: %s (model=%s)", e.Code, e.Message, e.ModelID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsBeanDefinitionError returns true if err is a bean definition error.
func IsBeanDefinitionError(err error) bool { return CodeOf(err) == ErrCodeBeanDefinition }

// IsDuplicateIDError returns true if err is a duplicate id error.
func IsDuplicateIDError(err error) bool { return CodeOf(err) == ErrCodeDuplicateID }

// IsUnsupportedTypeError returns true if err is an unsupported type error.
func IsUnsupportedTypeError(err error) bool { return CodeOf(err) == ErrCodeUnsupportedType }

// IsReferenceResolutionError returns true if err is a reference resolution error.
func IsReferenceResolutionError(err error) bool { return CodeOf(err) == ErrCodeReferenceResolution }

// IsNullArgumentError returns true if err is a null argument error.
func IsNullArgumentError(err error) bool { return CodeOf(err) == ErrCodeNullArgument }

// NewBeanDefinitionError creates an Error for an invalid bean type or argument.
func NewBeanDefinitionError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeBeanDefinition, Message: fmt.Sprintf(format, args...)}
}

// NewDuplicateIDError creates an Error for an id collision.
func NewDuplicateIDError(id string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateID,
		Message: "presentation model id already present",
		ModelID: id,
	}
}

// NewUnsupportedTypeError creates an Error for a value type without converter.
func NewUnsupportedTypeError(valueType string) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedType,
		Message: fmt.Sprintf("no converter for value type %q", valueType),
		Details: map[string]string{"value_type": valueType},
	}
}

// NewReferenceResolutionError creates an Error for an unknown bean id.
func NewReferenceResolutionError(modelID, property, refID string) *Error {
	return &Error{
		Code:     ErrCodeReferenceResolution,
		Message:  fmt.Sprintf("bean reference %q cannot be resolved", refID),
		ModelID:  modelID,
		Property: property,
		Details:  map[string]string{"reference": refID},
	}
}

// NewNullArgumentError creates an Error for a nil required argument.
func NewNullArgumentError(arg string) *Error {
	return &Error{
		Code:    ErrCodeNullArgument,
		Message: fmt.Sprintf("argument %q must not be nil", arg),
	}
}

// NewUnknownPropertyError creates an Error for an undeclared attribute name.
func NewUnknownPropertyError(modelID, property string) *Error {
	return &Error{
		Code:     ErrCodeUnknownProperty,
		Message:  "no such property",
		ModelID:  modelID,
		Property: property,
	}
}

// NewUnknownModelError creates an Error for a missing model id.
func NewUnknownModelError(modelID string) *Error {
	return &Error{
		Code:    ErrCodeUnknownModel,
		Message: "presentation model not found",
		ModelID: modelID,
	}
}

// NewIndexOutOfRangeError creates an Error for an invalid list range.
func NewIndexOutOfRangeError(modelID, property string, from, to, size int) *Error {
	return &Error{
		Code:     ErrCodeIndexOutOfRange,
		Message:  fmt.Sprintf("range [%d,%d) out of bounds for list of size %d", from, to, size),
		ModelID:  modelID,
		Property: property,
		Details: map[string]string{
			"from": fmt.Sprintf("%d", from),
			"to":   fmt.Sprintf("%d", to),
			"size": fmt.Sprintf("%d", size),
		},
	}
}

// NewSchemaMismatchError creates an Error for incompatible bean type shapes.
func NewSchemaMismatchError(beanType, message string) *Error {
	return &Error{
		Code:    ErrCodeSchemaMismatch,
		Message: message,
		ModelID: ClassDescriptorID(beanType),
		Details: map[string]string{"bean_type": beanType},
	}
}

// NewTypeMismatchError creates an Error for a value of the wrong type.
func NewTypeMismatchError(property string, want string, got any) *Error {
	return &Error{
		Code:     ErrCodeTypeMismatch,
		Message:  fmt.Sprintf("expected %s, got %T", want, got),
		Property: property,
	}
}
