package chat

import "errors"

var (
	// ErrThreadNotFound is returned when a referenced thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound is returned when a referenced message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyContent is returned when a message body is empty.
	ErrEmptyContent = errors.New("message content must not be empty")

	// ErrEmptyTitle is returned when a thread title is empty.
	ErrEmptyTitle = errors.New("thread title must not be empty")
)
