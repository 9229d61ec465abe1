package core

// # Error Codes Reference
//
// Every error surfaced over HTTP is mapped to a user message carrying a code
// that can be quoted in support requests. Codes are grouped by category:
//
//	CSV001-CSV099  ingestion: malformed CSV, undecodable bytes, incompatible append
//	DS001-DS099    dataset state: not found, locked by a job, failed ingestion
//	QRY001-QRY099  queries: unknown keys, bad values, timeouts
//	ALS001-ALS099  aliases: conflicts and invalid names
//	FILE001-099    request bodies: size, media type, empty
//	DB001-DB099    persistence
//	RATE001        rate limiting
//	SRV001         shutdown
//
// Patterns are matched case-insensitively against err.Error(), first match
// wins, so more specific patterns must precede general ones. Dataset state
// patterns come first because their messages embed the ingestion error.

import (
	"strings"
)

// UserMessage is the client-facing description of an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Dataset state
	{
		pattern: "dataset not found",
		msg: UserMessage{
			Message: "Dataset not found",
			Action:  "Check the dataset id or alias",
			Code:    "DS001",
		},
	},
	{
		pattern: "dataset locked",
		msg: UserMessage{
			Message: "The dataset is being processed",
			Action:  "Poll the info resource and retry once the dataset is available",
			Code:    "DS002",
		},
	},
	{
		pattern: "dataset failed",
		msg: UserMessage{
			Message: "The last ingestion of this dataset failed",
			Action:  "Inspect the info resource for details and upload a corrected file",
			Code:    "DS003",
		},
	},

	// Ingestion
	{
		pattern: "malformed csv",
		msg: UserMessage{
			Message: "The uploaded file is not valid CSV",
			Action:  "Make sure every row has the same number of fields as the header",
			Code:    "CSV001",
		},
	},
	{
		pattern: "decode upload",
		msg: UserMessage{
			Message: "The uploaded file could not be decoded",
			Action:  "Save the file as UTF-8 or declare its charset in the Content-Type header",
			Code:    "CSV002",
		},
	},
	{
		pattern: "incompatible columns",
		msg: UserMessage{
			Message: "The uploaded columns do not match the dataset",
			Action:  "Append files with the same columns or replace the dataset instead",
			Code:    "CSV003",
		},
	},

	// Queries
	{
		pattern: "unknown filter key",
		msg: UserMessage{
			Message: "The query references a column that does not exist",
			Action:  "Use the column names listed in the info resource",
			Code:    "QRY001",
		},
	},
	{
		pattern: "invalid filter",
		msg: UserMessage{
			Message: "A query parameter has an invalid value",
			Action:  "Check regular expressions and make _limit and _offset integers",
			Code:    "QRY002",
		},
	},
	{
		pattern: "query timeout",
		msg: UserMessage{
			Message: "The query exceeded the maximum execution time",
			Action:  "Narrow the query or use a smaller _limit",
			Code:    "QRY003",
		},
	},

	// Aliases
	{
		pattern: "alias conflict",
		msg: UserMessage{
			Message: "An alias is already in use",
			Action:  "Choose a different alias",
			Code:    "ALS001",
		},
	},
	{
		pattern: "invalid alias list",
		msg: UserMessage{
			Message: "The alias list could not be read",
			Action:  "Send a JSON array of strings",
			Code:    "ALS003",
		},
	},
	{
		pattern: "invalid alias",
		msg: UserMessage{
			Message: "Aliases must be non-empty and alphanumeric",
			Action:  "Remove spaces and punctuation from the alias",
			Code:    "ALS002",
		},
	},

	// Request bodies
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks and append them",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported media type",
		msg: UserMessage{
			Message: "Only CSV uploads are accepted",
			Action:  "Send the file with Content-Type text/csv",
			Code:    "FILE002",
		},
	},
	{
		pattern: "empty request body",
		msg: UserMessage{
			Message: "The upload was empty",
			Action:  "Send the CSV file as the request body",
			Code:    "FILE003",
		},
	},

	// Persistence
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
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

	// Service
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "shutting down",
		msg: UserMessage{
			Message: "The service is shutting down",
			Action:  "Retry the request shortly",
			Code:    "SRV001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error into a user message.
// Returns an empty UserMessage for nil.
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

// IsUserFacing reports whether err matches a known pattern. Errors that do
// not are internal and their text should not reach clients.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
