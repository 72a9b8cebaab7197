package services

import "github.com/messagely/apiserver/types"

// AccessGuard decides which identities may see or mutate a message.
type AccessGuard struct{}

// CanView reports whether identity is the sender or the recipient.
func (AccessGuard) CanView(identity types.Identity, message types.Message) bool {
	if identity.Username == "" {
		return false
	}
	return identity.Username == message.Sender() || identity.Username == message.Recipient()
}

// CanMarkRead reports whether identity is the recipient. Senders may not mark
// their own messages read.
func (AccessGuard) CanMarkRead(identity types.Identity, message types.Message) bool {
	if identity.Username == "" {
		return false
	}
	return identity.Username == message.Recipient()
}
