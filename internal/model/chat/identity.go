package chat

import "strings"

// Identity names the requester: an authenticated user id or an anonymous identifier.
type Identity struct {
	UserID string
	AnonID string
}

// Authenticated reports whether the requester is a logged-in user.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != ""
}

// Valid reports whether the identity names anyone at all.
func (i Identity) Valid() bool {
	return i.Authenticated() || strings.TrimSpace(i.AnonID) != ""
}

// Owner is the storage key used for ownership checks. User ids win over anonymous ids.
func (i Identity) Owner() string {
	if i.Authenticated() {
		return "user:" + strings.TrimSpace(i.UserID)
	}
	if id := strings.TrimSpace(i.AnonID); id != "" {
		return "anon:" + id
	}
	return ""
}

func (i Identity) String() string {
	if owner := i.Owner(); owner != "" {
		return owner
	}
	return "unidentified"
}
