package models

// Friend is one invited member of a group registration. Friends are embedded
// in payments, waiting-list entries and leader registrations as an ordered
// JSON array and copied verbatim between them.
type Friend struct {
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Dietary         string `json:"dietary,omitempty"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

// Guest holds contact details of an unauthenticated requester.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// RegistrationKind tags how a request entered the system.
type RegistrationKind string

const (
	KindIndividual RegistrationKind = "individual"
	KindGroup      RegistrationKind = "group"
	KindAdmin      RegistrationKind = "admin"
)

// KindFor returns the kind implied by the number of friends.
func KindFor(friends []Friend) RegistrationKind {
	if len(friends) > 0 {
		return KindGroup
	}
	return KindIndividual
}
