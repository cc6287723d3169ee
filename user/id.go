package user

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/terraskye/eventcore"
)

// MaxNameLength is the maximum length of a user name, in characters.
const MaxNameLength = 255

const streamPrefix = "user-"

// ID identifies a user. The zero value is not a valid id.
type ID uint32

// NewID validates a raw user id.
func NewID(v uint32) (ID, error) {
	if v == 0 {
		return 0, eventcore.NewValidationError("user_id", "must be greater than 0")
	}
	return ID(v), nil
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// StreamID is the event stream of the user.
func StreamID(id ID) string {
	return streamPrefix + id.String()
}

// ParseStreamID extracts the user id from a stream id built by StreamID.
func ParseStreamID(streamID string) (ID, error) {
	raw, ok := strings.CutPrefix(streamID, streamPrefix)
	if !ok {
		return 0, fmt.Errorf("stream %q is not a user stream", streamID)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("stream %q: %w", streamID, err)
	}
	return NewID(uint32(v))
}

// IsStream reports whether streamID belongs to a user.
func IsStream(streamID string) bool {
	return strings.HasPrefix(streamID, streamPrefix)
}

// Name is a trimmed, non-empty user name of at most MaxNameLength characters.
type Name string

// NewName trims and validates a raw name.
func NewName(raw string) (Name, error) {
	n := strings.TrimSpace(raw)
	if n == "" {
		return "", eventcore.NewValidationError("name", "cannot be empty")
	}
	if l := utf8.RuneCountInString(n); l > MaxNameLength {
		return "", eventcore.NewValidationError("name", "cannot exceed %d characters, got %d", MaxNameLength, l)
	}
	return Name(n), nil
}

func (n Name) String() string {
	return string(n)
}

// SameAs compares names ignoring case.
func (n Name) SameAs(other Name) bool {
	return strings.EqualFold(string(n), string(other))
}
