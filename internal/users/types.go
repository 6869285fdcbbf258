package users

import (
	"strings"
)

// Address is the postal address stored on a donor's profile.
type Address struct {
	Street string `json:"street" dynamodbav:"street"`
	City   string `json:"city" dynamodbav:"city"`
	State  string `json:"state" dynamodbav:"state"`
	Pin    string `json:"pin" dynamodbav:"pin"`
}

// Format renders the address as a single line, skipping empty parts.
func (a Address) Format() string {
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	line := strings.Join(parts, ", ")
	if pin := strings.TrimSpace(a.Pin); pin != "" {
		if line == "" {
			return pin
		}
		line += " - " + pin
	}
	return line
}

// User is the read model of a registered donor. Registration and profile edits
// live in the registry service; donations only read it.
type User struct {
	ID        string  `json:"id" dynamodbav:"user_id"`
	Name      string  `json:"name" dynamodbav:"name"`
	Email     string  `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone     string  `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	KhandanID string  `json:"khandanId,omitempty" dynamodbav:"khandan_id,omitempty"`
	Address   Address `json:"address" dynamodbav:"address"`
}
