// Package errors provides the structured error system used across rlsr.
// It extends Go's standard error handling with string error codes and
// context preservation so a failure can be traced to the release, build,
// or publish target that produced it.
package errors

// ErrorCode represents a specific error condition in a release run.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists and cannot be created again.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeConflict indicates a resource state conflict that prevents the operation.
	CodeConflict ErrorCode = "CONFLICT"

	// Permission errors.

	// CodeUnauthorized indicates the request lacks valid authentication credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a malformed or contradictory release declaration.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeTemplateFailed indicates a template could not be parsed or rendered,
	// usually an unresolvable variable or filter.
	CodeTemplateFailed ErrorCode = "TEMPLATE_FAILED"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// Execution errors.

	// CodeExecutionFailed indicates a hook or helper command failed.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeBuildFailed indicates a build exited non-zero or could not be spawned.
	CodeBuildFailed ErrorCode = "BUILD_FAILED"

	// CodePackagingFailed indicates an I/O failure while archiving or hashing.
	CodePackagingFailed ErrorCode = "PACKAGING_FAILED"

	// CodeChangelogFailed indicates commit history was unavailable or the
	// changelog could not be rendered.
	CodeChangelogFailed ErrorCode = "CHANGELOG_FAILED"

	// CodePublishFailed indicates a publish operation failed.
	CodePublishFailed ErrorCode = "PUBLISH_FAILED"

	// System errors.

	// CodeInternal indicates an internal system error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
