// Package errors provides coded errors shared by the content repository layers.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors: the command broke a structural or business rule.
	CodeValidationFailed           Code = "VALIDATION_FAILED"
	CodeContentStreamNotFound      Code = "CONTENT_STREAM_NOT_FOUND"
	CodeContentStreamAlreadyExists Code = "CONTENT_STREAM_ALREADY_EXISTS"
	CodeContentStreamClosed        Code = "CONTENT_STREAM_CLOSED"
	CodeNodeAggregateNotFound      Code = "NODE_AGGREGATE_NOT_FOUND"
	CodeNodeAggregateExists        Code = "NODE_AGGREGATE_ALREADY_EXISTS"
	CodeNodeVariantNotFound        Code = "NODE_VARIANT_NOT_FOUND"
	CodeNodeVariantExists          Code = "NODE_VARIANT_ALREADY_EXISTS"
	CodeNodeNameOccupied           Code = "NODE_NAME_OCCUPIED"
	CodeNodeTypeNotFound           Code = "NODE_TYPE_NOT_FOUND"
	CodeNodeTypeMismatch           Code = "NODE_TYPE_MISMATCH"
	CodePropertyNotDeclared        Code = "PROPERTY_NOT_DECLARED"
	CodeReferenceNotDeclared       Code = "REFERENCE_NOT_DECLARED"
	CodeDimensionPointInvalid      Code = "DIMENSION_POINT_INVALID"
	CodeDimensionPointNotCovered   Code = "DIMENSION_POINT_NOT_COVERED"
	CodeDimensionPointOccupied     Code = "DIMENSION_POINT_OCCUPIED"
	CodeNodeAggregateDisabled      Code = "NODE_AGGREGATE_ALREADY_DISABLED"
	CodeNodeAggregateNotDisabled   Code = "NODE_AGGREGATE_NOT_DISABLED"
	CodeTetheredNodeRemoval        Code = "TETHERED_NODE_REMOVAL"
	CodeWorkspaceNotFound          Code = "WORKSPACE_NOT_FOUND"
	CodeWorkspaceAlreadyExists     Code = "WORKSPACE_ALREADY_EXISTS"
	CodeWorkspaceHasNoBase         Code = "WORKSPACE_HAS_NO_BASE"

	// Concurrency errors: the stream advanced past the expected version.
	CodeConcurrencyConflict   Code = "CONCURRENCY_CONFLICT"
	CodeBaseWorkspaceModified Code = "BASE_WORKSPACE_MODIFIED"

	// Rebase errors: one or more replayed commands failed.
	CodeRebaseConflict Code = "REBASE_CONFLICT"

	// Projection consistency errors: derived state cannot follow the log.
	CodeProjectionInconsistent Code = "PROJECTION_INCONSISTENT"

	// Configuration errors: fatal before any command is accepted.
	CodeConfigurationInvalid Code = "CONFIGURATION_INVALID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidationFailed,
		CodeNodeTypeNotFound,
		CodeNodeTypeMismatch,
		CodePropertyNotDeclared,
		CodeReferenceNotDeclared,
		CodeDimensionPointInvalid:
		return codes.InvalidArgument

	case CodeContentStreamNotFound,
		CodeNodeAggregateNotFound,
		CodeNodeVariantNotFound,
		CodeWorkspaceNotFound,
		CodeNotFound:
		return codes.NotFound

	case CodeContentStreamAlreadyExists,
		CodeNodeAggregateExists,
		CodeNodeVariantExists,
		CodeNodeNameOccupied,
		CodeWorkspaceAlreadyExists,
		CodeDimensionPointOccupied:
		return codes.AlreadyExists

	case CodeContentStreamClosed,
		CodeDimensionPointNotCovered,
		CodeNodeAggregateDisabled,
		CodeNodeAggregateNotDisabled,
		CodeTetheredNodeRemoval,
		CodeWorkspaceHasNoBase,
		CodeRebaseConflict:
		return codes.FailedPrecondition

	case CodeConcurrencyConflict,
		CodeBaseWorkspaceModified:
		return codes.Aborted

	case CodeProjectionInconsistent,
		CodeConfigurationInvalid:
		return codes.Internal

	default:
		return codes.Unknown
	}
}

// IsValidation reports whether the code belongs to the validation family.
func (c Code) IsValidation() bool {
	switch c.GRPCCode() {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists:
		return true
	case codes.FailedPrecondition:
		return c != CodeRebaseConflict
	default:
		return false
	}
}

// IsConcurrency reports whether the caller should re-snapshot and retry.
func (c Code) IsConcurrency() bool {
	return c == CodeConcurrencyConflict || c == CodeBaseWorkspaceModified
}
