package domain

import "strings"

const (
	customerOwnerPrefix = "customer:"
	guestOwnerPrefix    = "guest:"
)

// CustomerOwner is the cart owner key of an authenticated customer.
func CustomerOwner(customerID string) string {
	return customerOwnerPrefix + customerID
}

// GuestOwner is the cart owner key of an anonymous session.
func GuestOwner(sessionID string) string {
	return guestOwnerPrefix + sessionID
}

func IsGuestOwner(owner string) bool {
	return strings.HasPrefix(owner, guestOwnerPrefix)
}
