package core

// error_messages.go maps technical errors to user-facing messages with a
// code support staff can look up.
//
// # Codes
//
//	DB001   duplicate key            a row with this id or slug already exists
//	DB002   foreign key              referenced row does not exist
//	DB003   connection refused       database unreachable
//	DB004   connection reset         connection dropped mid-operation
//	DB005   timeout                  statement or commit timed out
//	DB006   deadlock                 conflicting concurrent writes
//	VAL001  invalid number           a mandatory id is not an integer
//	VAL002  required field           a mandatory column is empty
//	VAL003  column count             a row has too few columns
//	FILE001 file access              input file missing, unreadable, or a directory
//	FILE002 malformed line           unbalanced quotes in the input
//	FILE003 invalid reader options   delimiter and quote conflict
//	IMP001  import in progress       another import holds the run slot
//	IMP002  stale reference          internal cache discipline violated
//	IMP003  cancelled                request cancelled by the client
//	IMP004  deadline exceeded        import took longer than allowed
//	REQ001  bad request              request parameters could not be parsed
//	REQ002  not found                requested row does not exist
//	ERR000  unknown                  check the logs for the technical error
//
// Typed errors are matched first with errors.Is. Everything else is matched
// case-insensitively by substring; the first matching pattern wins, so more
// specific patterns come first.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgFileAccess = UserMessage{
		Message: "An input file is missing or cannot be read",
		Action:  "Check the file path and permissions, then start the import again",
		Code:    "FILE001",
	}
	msgInProgress = UserMessage{
		Message: "Another import is already running",
		Action:  "Wait for it to finish and try again",
		Code:    "IMP001",
	}
	msgStale = UserMessage{
		Message: "The import stopped on an internal consistency check",
		Action:  "Report this to support with the run id",
		Code:    "IMP002",
	}
	msgCancelled = UserMessage{
		Message: "The import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "IMP003",
	}
	msgDeadline = UserMessage{
		Message: "The import took too long",
		Action:  "Split the input or raise the import timeout",
		Code:    "IMP004",
	}
	msgNotFound = UserMessage{
		Message: "The requested record does not exist",
		Action:  "Check the id and try again",
		Code:    "REQ002",
	}
)

// typedErrors are checked with errors.Is before any substring matching.
var typedErrors = []struct {
	target error
	msg    UserMessage
}{
	{ErrFileAccess, msgFileAccess},
	{ErrImportInProgress, msgInProgress},
	{ErrStaleReference, msgStale},
	{ErrNotFound, msgNotFound},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgDeadline},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A record with this id or slug already exists",
		Action:  "Remove the duplicate rows or the existing records",
		Code:    "DB001",
	}},
	{"violates unique", UserMessage{
		Message: "A record with this id or slug already exists",
		Action:  "Remove the duplicate rows or the existing records",
		Code:    "DB001",
	}},
	{"foreign key", UserMessage{
		Message: "A referenced record does not exist",
		Action:  "Import the referenced records first",
		Code:    "DB002",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB003",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB004",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller batch size or try again later",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB006",
	}},
	{"invalid number", UserMessage{
		Message: "A numeric identifier is not a valid number",
		Action:  "Use plain integers for id columns",
		Code:    "VAL001",
	}},
	{"required field", UserMessage{
		Message: "A required field is empty",
		Action:  "Ensure all required columns have values",
		Code:    "VAL002",
	}},
	{"expected at least", UserMessage{
		Message: "A row has too few columns",
		Action:  "Check the delimiter and the column layout of the file",
		Code:    "VAL003",
	}},
	{"malformed line", UserMessage{
		Message: "A line has unbalanced quotes",
		Action:  "Check the quote and escape characters used by the file",
		Code:    "FILE002",
	}},
	{"reader options", UserMessage{
		Message: "The delimiter and quote settings conflict",
		Action:  "Use different characters for delimiter and quote",
		Code:    "FILE003",
	}},
	{"bad request", UserMessage{
		Message: "The request could not be understood",
		Action:  "Check the request parameters",
		Code:    "REQ001",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(&FileAccessError{Path: "x.csv", Op: "stat", Err: os.ErrNotExist})
//	// msg.Code == "FILE001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, te := range typedErrors {
		if errors.Is(err, te.target) {
			return te.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
