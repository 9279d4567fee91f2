package editor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFileTooLarge is returned when an upload exceeds the configured byte cap.
var ErrFileTooLarge = errors.New("file too large")

// ErrNoFile is returned when a load request carries no file.
var ErrNoFile = errors.New("no file provided")

// ErrInvalidPosition is returned when a row or column parameter is not a number.
var ErrInvalidPosition = errors.New("invalid cell position")

// UserMessage is what the page shows for a failed action.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively against err.Error(); the
// first hit wins, so specific patterns go before general ones.
var errorPatterns = []errorPattern{
	// File intake
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file or remove unused columns",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated text",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Drop a CSV file on the page or click to choose one",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Choose a CSV file with at least a header line",
			Code:    "FILE005",
		},
	},

	// Edits
	{
		pattern: "row index out of range",
		msg: UserMessage{
			Message: "That row no longer exists",
			Action:  "Reload the page to see the current table",
			Code:    "EDT001",
		},
	},
	{
		pattern: "column index out of range",
		msg: UserMessage{
			Message: "That column does not exist",
			Action:  "Reload the page to see the current table",
			Code:    "EDT002",
		},
	},
	{
		pattern: "invalid cell position",
		msg: UserMessage{
			Message: "The edit did not name a valid cell",
			Action:  "Reload the page and try again",
			Code:    "EDT003",
		},
	},

	// Intake and request lifecycle
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "The editor is busy reading other files",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},

	// Sessions
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Your editing session has expired",
			Action:  "Load the file again",
			Code:    "SES001",
		},
	},

	// Throttling
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again",
	Code:    "ERR000",
}

// MapError converts a technical error into a user message. A nil error maps
// to the zero UserMessage; an unknown one to ERR000.
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

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError wraps err with its mapped message. Returns nil for nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
