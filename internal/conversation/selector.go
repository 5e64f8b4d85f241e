package conversation

import (
	"neonchat/internal/models"
)

// Kind names the three conversation targets a client can select.
type Kind string

const (
	KindDirect  Kind = "direct"
	KindRoom    Kind = "room"
	KindSupport Kind = "support"
)

// PairKey joins two user ids into the canonical direct-conversation
// key. Order-independent: PairKey(a, b) == PairKey(b, a), so a pair of
// users can never end up with two distinct conversation paths.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// Resolve maps a selection target to its message-collection path in
// the primary store. Pure mapping, no I/O. Direct and support targets
// require a signed-in principal.
func Resolve(kind Kind, targetID, selfUID string) (string, error) {
	switch kind {
	case KindDirect:
		if selfUID == "" {
			return "", &models.AuthError{Message: "Please sign in to view chats"}
		}
		if targetID == "" {
			return "", &models.ValidationError{Field: "target", Reason: "required"}
		}
		return "chats/" + PairKey(selfUID, targetID) + "/messages", nil

	case KindRoom:
		if targetID == "" {
			return "", &models.ValidationError{Field: "target", Reason: "required"}
		}
		return "privateChats/" + targetID + "/messages", nil

	case KindSupport:
		if selfUID == "" {
			return "", &models.AuthError{Message: "Please sign in to contact admin"}
		}
		return "support/" + selfUID + "/messages", nil

	default:
		return "", &models.ValidationError{Field: "kind", Reason: "unknown conversation kind"}
	}
}
