package events

import (
	"strings"

	"github.com/google/uuid"
)

// Every push is addressed to exactly one user, so each broker keys its traffic
// by recipient: Redis channels channel:user:<id>, NATS subjects chat.user.<id>.
const (
	UserChannelPrefix = "channel:user:"
	UserChannelAll    = UserChannelPrefix + "*"

	UserSubjectPrefix = "chat.user."
	UserSubjectAll    = UserSubjectPrefix + "*"
)

func UserChannel(userID uuid.UUID) string {
	return UserChannelPrefix + userID.String()
}

func UserSubject(userID uuid.UUID) string {
	return UserSubjectPrefix + userID.String()
}

// ParseUserChannel extracts the recipient from a Redis channel name.
func ParseUserChannel(channel string) (uuid.UUID, bool) {
	return parseSuffix(channel, UserChannelPrefix)
}

// ParseUserSubject extracts the recipient from a NATS subject.
func ParseUserSubject(subject string) (uuid.UUID, bool) {
	return parseSuffix(subject, UserSubjectPrefix)
}

func parseSuffix(name, prefix string) (uuid.UUID, bool) {
	if !strings.HasPrefix(name, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(name, prefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
