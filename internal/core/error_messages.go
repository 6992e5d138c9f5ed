// Package core error codes reference.
//
// This file defines user-friendly error messages with codes for support reference.
// Error codes are grouped by category:
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key             Patterns: "duplicate key"
//	DB002 - Unique constraint         Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key               Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused        Patterns: "connection refused"
//	DB005 - Connection reset          Patterns: "connection reset"
//	DB006 - Timeout                   Patterns: "timeout"
//	DB007 - Deadlock                  Patterns: "deadlock"
//	DB008 - Authentication failed     Patterns: "access denied", "password authentication failed", "login failed"
//	DB009 - Unknown host              Patterns: "no such host"
//	DB010 - Unknown database          Patterns: "unknown database", "cannot open database", "does not exist"
//	DB011 - Permission denied         Patterns: "permission denied"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Table name missing       Patterns: "table name is required"
//	VAL002 - No columns               Patterns: "no columns selected"
//	VAL003 - Unknown database kind    Patterns: "unknown database kind"
//	VAL004 - Unknown conflict policy  Patterns: "unknown conflict policy"
//	VAL005 - Connection field missing Patterns: "required connection field"
//	VAL006 - Connection field invalid Patterns: "invalid connection field"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large          Patterns: "file too large", "request body too large"
//	FILE002 - Invalid CSV             Patterns: "invalid csv"
//	FILE003 - Invalid spreadsheet     Patterns: "invalid spreadsheet"
//	FILE004 - No file                 Patterns: "no file provided"
//	FILE005 - Empty file              Patterns: "empty file"
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - Table exists            Patterns: "table already exists"
//	LOAD002 - System busy             Patterns: "too many concurrent loads"
//	LOAD003 - Load not found          Patterns: "load not found"
//	LOAD004 - Load cancelled          Patterns: "load cancelled", "context canceled"
//	LOAD005 - Load timed out          Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited            Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// User input (VAL, FILE)
	// Checked first: these sentinels are wrapped with extra context and must
	// not be shadowed by database patterns.
	// =========================================================================
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please upload a file first!",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header row",
			Code:    "FILE005",
		},
	},
	{
		pattern: "table name is required",
		msg: UserMessage{
			Message: "No table name was given",
			Action:  "Please enter a valid table name!",
			Code:    "VAL001",
		},
	},
	{
		pattern: "no columns selected",
		msg: UserMessage{
			Message: "Every column is excluded",
			Action:  "Include at least one column",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unknown database kind",
		msg: UserMessage{
			Message: "Unsupported database type",
			Action:  "Choose MySQL, PostgreSQL or SQL Server",
			Code:    "VAL003",
		},
	},
	{
		pattern: "unknown conflict policy",
		msg: UserMessage{
			Message: "Unsupported if-exists option",
			Action:  "Choose replace, append or fail",
			Code:    "VAL004",
		},
	},
	{
		pattern: "required connection field",
		msg: UserMessage{
			Message: "A connection field is empty",
			Action:  "Fill in host, port and database",
			Code:    "VAL005",
		},
	},
	{
		pattern: "invalid connection field",
		msg: UserMessage{
			Message: "A connection field is not valid",
			Action:  "Check the host name and port for typos or stray characters",
			Code:    "VAL006",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure every row has no more fields than the header",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid spreadsheet",
		msg: UserMessage{
			Message: "File is not a readable Excel workbook",
			Action:  "Save the file as .xlsx or .csv",
			Code:    "FILE003",
		},
	},

	// =========================================================================
	// Load (LOAD)
	// =========================================================================
	{
		pattern: "table already exists",
		msg: UserMessage{
			Message: "The target table already exists",
			Action:  "Pick another table name or choose replace or append",
			Code:    "LOAD001",
		},
	},
	{
		pattern: "too many concurrent loads",
		msg: UserMessage{
			Message: "System is busy processing other loads",
			Action:  "Please wait a moment and try again",
			Code:    "LOAD002",
		},
	},
	{
		pattern: "load not found",
		msg: UserMessage{
			Message: "Load not found",
			Action:  "The load may have expired. Please submit it again",
			Code:    "LOAD003",
		},
	},
	{
		pattern: "load cancelled",
		msg: UserMessage{
			Message: "Load was cancelled",
			Action:  "Submit again when ready",
			Code:    "LOAD004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "LOAD004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Load timed out",
			Action:  "Try a smaller file or check the database is reachable",
			Code:    "LOAD005",
		},
	},

	// =========================================================================
	// Database constraint errors (DB001-DB003)
	// Reached when appending rows that clash with an existing table.
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Remove duplicate rows or use replace",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Load parent records first",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Load parent records first",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database connection errors (DB004-DB011)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check host and port, then try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Check the database is reachable or try a smaller file",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "access denied",
		msg: UserMessage{
			Message: "The database rejected the username or password",
			Action:  "Check your credentials",
			Code:    "DB008",
		},
	},
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "The database rejected the username or password",
			Action:  "Check your credentials",
			Code:    "DB008",
		},
	},
	{
		pattern: "login failed",
		msg: UserMessage{
			Message: "The database rejected the username or password",
			Action:  "Check your credentials",
			Code:    "DB008",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Database host could not be resolved",
			Action:  "Check the host name",
			Code:    "DB009",
		},
	},
	{
		pattern: "unknown database",
		msg: UserMessage{
			Message: "The database does not exist",
			Action:  "Check the database name",
			Code:    "DB010",
		},
	},
	{
		pattern: "cannot open database",
		msg: UserMessage{
			Message: "The database does not exist",
			Action:  "Check the database name",
			Code:    "DB010",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "The database or an object in it does not exist",
			Action:  "Check the database name",
			Code:    "DB010",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "The database user lacks permission for this operation",
			Action:  "Grant CREATE and INSERT rights or use another account",
			Code:    "DB011",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the error details below",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := fmt.Errorf("load orders: %w", ErrTableExists)
//	msg := MapError(err)
//	// msg.Code == "LOAD001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
