package provisionbus

import (
	"fmt"
	"net/mail"

	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subdomain"
)

// Set of steps at which provisioning can fail. Surfaced so operators know
// what to clean up.
const (
	StepValidate = "validate"
	StepProbe    = "probe"
	StepSchema   = "schema"
	StepTemplate = "template"
	StepSeed     = "seed"
	StepEncrypt  = "encrypt"
	StepRecord   = "record"
)

// ProvisioningError reports which step of tenant creation failed.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed at step %q: %s", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

func failed(step string, err error) error {
	return &ProvisioningError{Step: step, Err: err}
}

// NewProvision contains the information needed to create a tenant.
type NewProvision struct {
	Name         name.Name
	Subdomain    subdomain.Subdomain
	ContactEmail mail.Address

	// Descriptor is where the tenant's data lives. ModeShared requests
	// automatic shared-schema provisioning.
	Descriptor descriptor.Descriptor
	Secret     string

	AdminName  name.Name
	AdminEmail mail.Address
}

// Provisioned is the outcome of a successful provisioning run. AdminPassword
// is generated server side and only ever returned here.
type Provisioned struct {
	Tenant        tenantbus.Tenant
	AdminPassword string
}
