// Package descriptor represents the tenant connection descriptor type in the
// system. A descriptor carries the isolation mode as an explicit tag rather
// than a prefix-parsed string so a malformed marker can never silently fall
// through to the wrong isolation strategy.
package descriptor

import (
	"fmt"
	"regexp"
	"strings"
)

// The set of isolation modes a tenant database can use.
var (
	// ModeShared is the placeholder for a tenant whose database has not
	// been provisioned yet.
	ModeShared = newMode("shared")

	// ModeDedicated points at a database exclusively owned by the tenant.
	ModeDedicated = newMode("dedicated")

	// ModeSharedSchema isolates the tenant inside a named schema of the
	// control plane database.
	ModeSharedSchema = newMode("shared-schema")
)

var modes = make(map[string]Mode)

// Mode represents an isolation mode in the system.
type Mode struct {
	value string
}

func newMode(mode string) Mode {
	m := Mode{mode}
	modes[mode] = m
	return m
}

// String returns the name of the mode.
func (m Mode) String() string {
	return m.value
}

// Equal provides support for the go-cmp package and testing.
func (m Mode) Equal(m2 Mode) bool {
	return m.value == m2.value
}

// =============================================================================

const sharedSchemaPrefix = "shared-schema:"

// Schema names are lowercase alphanumeric plus underscore.
var schemaMatcher = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Descriptor represents where a tenant's data lives.
type Descriptor struct {
	mode   Mode
	url    string
	schema string
}

// Shared returns the not-yet-provisioned placeholder descriptor.
func Shared() Descriptor {
	return Descriptor{mode: ModeShared}
}

// Dedicated constructs a descriptor for a tenant owned database.
func Dedicated(url string) (Descriptor, error) {
	if !strings.HasPrefix(url, "postgresql://") {
		return Descriptor{}, fmt.Errorf("invalid connection url %q", redact(url))
	}

	return Descriptor{mode: ModeDedicated, url: url}, nil
}

// SharedSchema constructs a descriptor for schema isolation inside the
// control plane database.
func SharedSchema(schema string) (Descriptor, error) {
	if !schemaMatcher.MatchString(schema) {
		return Descriptor{}, fmt.Errorf("invalid schema name %q", schema)
	}

	return Descriptor{mode: ModeSharedSchema, schema: schema}, nil
}

// Mode returns the isolation mode of the descriptor.
func (d Descriptor) Mode() Mode {
	return d.mode
}

// URL returns the connection url for a dedicated descriptor.
func (d Descriptor) URL() string {
	return d.url
}

// Schema returns the schema name for a shared-schema descriptor.
func (d Descriptor) Schema() string {
	return d.schema
}

// String reserializes the descriptor to its wire form.
func (d Descriptor) String() string {
	switch d.mode {
	case ModeDedicated:
		return d.url
	case ModeSharedSchema:
		return sharedSchemaPrefix + d.schema
	default:
		return "shared"
	}
}

// Equal provides support for the go-cmp package and testing.
func (d Descriptor) Equal(d2 Descriptor) bool {
	return d == d2
}

// =============================================================================

// Parse parses one of the three wire forms: the literal "shared", a
// postgresql:// connection url, or "shared-schema:<name>". Anything else
// is rejected before it can reach the vault.
func Parse(value string) (Descriptor, error) {
	switch {
	case value == "shared":
		return Shared(), nil

	case strings.HasPrefix(value, sharedSchemaPrefix):
		return SharedSchema(strings.TrimPrefix(value, sharedSchemaPrefix))

	case strings.HasPrefix(value, "postgresql://"):
		return Dedicated(value)

	default:
		return Descriptor{}, fmt.Errorf("invalid connection descriptor %q", redact(value))
	}
}

// MustParse parses the wire form and panics on failure.
func MustParse(value string) Descriptor {
	d, err := Parse(value)
	if err != nil {
		panic(err)
	}

	return d
}

// redact keeps credentials that may be embedded in a malformed url out of
// error messages and logs.
func redact(value string) string {
	if idx := strings.Index(value, "@"); idx >= 0 {
		return "***" + value[idx:]
	}
	if len(value) > 32 {
		return value[:32] + "***"
	}
	return value
}
