package apperr

import "fmt"

var (
	ErrConversationNotFound = NotFound("conversation not found")
	ErrUserNotFound         = NotFound("user not found")
	ErrNotParticipant       = Forbidden("not a participant of this conversation")
	ErrEmptyContent         = InvalidArg("message content must not be empty")
	ErrInvalidCursor        = InvalidArg("cursor must be an RFC3339 timestamp")
	ErrInvalidAudio         = InvalidArg("audio url is required")
	ErrInvalidDuration      = InvalidArg("audio duration must be positive")
	ErrSelfRating           = InvalidArg("cannot like or dislike yourself")
	ErrProgressConflict     = Conflict("conversation progressed concurrently")
)

func ErrContentTooLong(max int) error {
	return InvalidArg(fmt.Sprintf("message content exceeds %d characters", max))
}

func ErrDurationTooLong(maxSeconds int) error {
	return InvalidArg(fmt.Sprintf("audio duration exceeds %d seconds", maxSeconds))
}
