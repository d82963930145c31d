// Package subdomain represents the tenant routing key type in the system.
package subdomain

import (
	"fmt"
	"regexp"
)

// Host labels that can never identify a tenant.
var reserved = map[string]struct{}{
	"www":   {},
	"api":   {},
	"admin": {},
}

// Subdomains are lowercase alphanumeric plus hyphen, must start and end with
// an alphanumeric.
var matcher = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Subdomain represents a tenant routing key in the system.
type Subdomain struct {
	value string
}

// String returns the value of the subdomain.
func (s Subdomain) String() string {
	return s.value
}

// Equal provides support for the go-cmp package and testing.
func (s Subdomain) Equal(s2 Subdomain) bool {
	return s.value == s2.value
}

// MarshalText provides support for logging and any marshal needs.
func (s Subdomain) MarshalText() ([]byte, error) {
	return []byte(s.value), nil
}

// =============================================================================

// Parse parses the string value and returns a subdomain if the value
// complies with the rules for a subdomain.
func Parse(value string) (Subdomain, error) {
	if !matcher.MatchString(value) {
		return Subdomain{}, fmt.Errorf("invalid subdomain %q", value)
	}

	if _, exists := reserved[value]; exists {
		return Subdomain{}, fmt.Errorf("subdomain %q is reserved", value)
	}

	return Subdomain{value}, nil
}

// MustParse parses the string value and returns a subdomain if the value
// complies with the rules for a subdomain. If an error occurs the function
// panics.
func MustParse(value string) Subdomain {
	s, err := Parse(value)
	if err != nil {
		panic(err)
	}

	return s
}

// Reserved reports whether a host label is one of the non-tenant labels.
func Reserved(label string) bool {
	_, exists := reserved[label]
	return exists
}
