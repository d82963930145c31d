package tenantapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/provisionbus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subdomain"
)

// Tenant represents information about an individual tenant. Connection
// credentials never leave the business layer.
type Tenant struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Subdomain          string `json:"subdomain"`
	ContactEmail       string `json:"contactEmail"`
	Status             string `json:"status"`
	TrialStart         string `json:"trialStart"`
	SubscriptionExpiry string `json:"subscriptionExpiry,omitempty"`
	LastPaymentAt      string `json:"lastPaymentAt,omitempty"`
	RetentionDeadline  string `json:"retentionDeadline,omitempty"`
	DateCreated        string `json:"dateCreated"`
	DateUpdated        string `json:"dateUpdated"`
}

// Encode implements the web.Encoder interface.
func (t Tenant) Encode() ([]byte, string, error) {
	data, err := json.Marshal(t)
	return data, "application/json", err
}

func toAppTenant(bus tenantbus.Tenant) Tenant {
	return Tenant{
		ID:                 bus.ID.String(),
		Name:               bus.Name.String(),
		Subdomain:          bus.Subdomain.String(),
		ContactEmail:       bus.ContactEmail.Address,
		Status:             bus.Status.String(),
		TrialStart:         bus.TrialStart.Format(time.RFC3339),
		SubscriptionExpiry: formatTimePtr(bus.SubscriptionExpiry),
		LastPaymentAt:      formatTimePtr(bus.LastPaymentAt),
		RetentionDeadline:  formatTimePtr(bus.RetentionDeadline),
		DateCreated:        bus.CreatedAt.Format(time.RFC3339),
		DateUpdated:        bus.UpdatedAt.Format(time.RFC3339),
	}
}

func toAppTenants(tenants []tenantbus.Tenant) []Tenant {
	app := make([]Tenant, len(tenants))
	for i, tnt := range tenants {
		app[i] = toAppTenant(tnt)
	}
	return app
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// =============================================================================

// Provisioned is the response to a successful provision call. The admin
// password is generated server side and shown only in this response.
type Provisioned struct {
	Tenant        Tenant `json:"tenant"`
	AdminPassword string `json:"adminPassword"`
}

// Encode implements the web.Encoder interface.
func (p Provisioned) Encode() ([]byte, string, error) {
	data, err := json.Marshal(p)
	return data, "application/json", err
}

// HTTPStatus implements the web httpStatus interface.
func (p Provisioned) HTTPStatus() int {
	return http.StatusCreated
}

func toAppProvisioned(bus provisionbus.Provisioned) Provisioned {
	return Provisioned{
		Tenant:        toAppTenant(bus.Tenant),
		AdminPassword: bus.AdminPassword,
	}
}

// =============================================================================

// NewTenant defines the data needed to provision a tenant. Descriptor takes
// the wire form: "shared", "shared-schema:<name>" or a postgres URL.
type NewTenant struct {
	Name         string `json:"name" validate:"required"`
	Subdomain    string `json:"subdomain" validate:"required"`
	ContactEmail string `json:"contactEmail" validate:"required,email"`
	Descriptor   string `json:"descriptor" validate:"required"`
	Secret       string `json:"secret"`
	AdminName    string `json:"adminName" validate:"required"`
	AdminEmail   string `json:"adminEmail" validate:"required,email"`
}

// Decode implements the web.Decoder interface.
func (app *NewTenant) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app NewTenant) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

func toBusNewProvision(app NewTenant) (provisionbus.NewProvision, error) {
	nme, err := name.Parse(app.Name)
	if err != nil {
		return provisionbus.NewProvision{}, fmt.Errorf("parse name: %w", err)
	}

	sub, err := subdomain.Parse(app.Subdomain)
	if err != nil {
		return provisionbus.NewProvision{}, fmt.Errorf("parse subdomain: %w", err)
	}

	addr, err := mail.ParseAddress(app.ContactEmail)
	if err != nil {
		return provisionbus.NewProvision{}, fmt.Errorf("parse contact email: %w", err)
	}

	d, err := toBusDescriptor(app.Descriptor)
	if err != nil {
		return provisionbus.NewProvision{}, err
	}

	adminName, err := name.Parse(app.AdminName)
	if err != nil {
		return provisionbus.NewProvision{}, fmt.Errorf("parse admin name: %w", err)
	}

	adminAddr, err := mail.ParseAddress(app.AdminEmail)
	if err != nil {
		return provisionbus.NewProvision{}, fmt.Errorf("parse admin email: %w", err)
	}

	bus := provisionbus.NewProvision{
		Name:         nme,
		Subdomain:    sub,
		ContactEmail: *addr,
		Descriptor:   d,
		Secret:       app.Secret,
		AdminName:    adminName,
		AdminEmail:   *adminAddr,
	}

	return bus, nil
}

func toBusDescriptor(value string) (descriptor.Descriptor, error) {
	d, err := descriptor.Parse(value)
	if err != nil {
		return descriptor.Descriptor{}, fmt.Errorf("parse descriptor: %w", err)
	}
	return d, nil
}

// =============================================================================

// UpdateTenant defines the data needed to update a tenant's contact details.
type UpdateTenant struct {
	Name         *string `json:"name"`
	ContactEmail *string `json:"contactEmail" validate:"omitempty,email"`
}

// Decode implements the web.Decoder interface.
func (app *UpdateTenant) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app UpdateTenant) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

func toBusUpdateTenant(app UpdateTenant) (tenantbus.UpdateTenant, error) {
	var nme *name.Name
	if app.Name != nil {
		nm, err := name.Parse(*app.Name)
		if err != nil {
			return tenantbus.UpdateTenant{}, fmt.Errorf("parse name: %w", err)
		}
		nme = &nm
	}

	var addr *mail.Address
	if app.ContactEmail != nil {
		var err error
		addr, err = mail.ParseAddress(*app.ContactEmail)
		if err != nil {
			return tenantbus.UpdateTenant{}, fmt.Errorf("parse contact email: %w", err)
		}
	}

	bus := tenantbus.UpdateTenant{
		Name:         nme,
		ContactEmail: addr,
	}

	return bus, nil
}

// =============================================================================
// Lifecycle inputs

// Activate defines the data needed to approve a trial payment.
type Activate struct {
	PaymentRef string `json:"paymentRef" validate:"required"`
}

// Decode implements the web.Decoder interface.
func (app *Activate) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app Activate) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

// Unlock defines the data needed to reopen a locked account.
type Unlock struct {
	ExtensionDays int    `json:"extensionDays" validate:"required,gt=0"`
	PaymentRef    string `json:"paymentRef" validate:"required"`
}

// Decode implements the web.Decoder interface.
func (app *Unlock) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app Unlock) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

// Extend defines the data needed to push out an expiry.
type Extend struct {
	ExtensionDays int    `json:"extensionDays" validate:"required,gt=0"`
	PaymentRef    string `json:"paymentRef" validate:"required"`
}

// Decode implements the web.Decoder interface.
func (app *Extend) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app Extend) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

// Suspend defines the data needed to suspend an account.
type Suspend struct {
	Reason string `json:"reason" validate:"required,min=10"`
}

// Decode implements the web.Decoder interface.
func (app *Suspend) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app Suspend) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

// Churn defines the data needed to close an account.
type Churn struct {
	Reason string `json:"reason" validate:"required,min=10"`
}

// Decode implements the web.Decoder interface.
func (app *Churn) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app Churn) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

// RotateCredentials defines the data needed to rotate a tenant's connection
// material.
type RotateCredentials struct {
	Descriptor string `json:"descriptor" validate:"required"`
	Secret     string `json:"secret"`
}

// Decode implements the web.Decoder interface.
func (app *RotateCredentials) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app RotateCredentials) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

// =============================================================================

// AuditEntry represents one recorded state change.
type AuditEntry struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	Action     string `json:"action"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
	Actor      string `json:"actor,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DateCreated string `json:"dateCreated"`
}

// Encode implements the web.Encoder interface.
func (e AuditEntry) Encode() ([]byte, string, error) {
	data, err := json.Marshal(e)
	return data, "application/json", err
}

func toAppAuditEntry(bus auditbus.Entry) AuditEntry {
	var actor string
	if bus.Actor != nil {
		actor = bus.Actor.String()
	}

	return AuditEntry{
		ID:         bus.ID.String(),
		TenantID:   bus.TenantID.String(),
		Action:     bus.Action,
		FromStatus: bus.FromStatus.String(),
		ToStatus:   bus.ToStatus.String(),
		Actor:      actor,
		Reason:     bus.Reason,
		DateCreated: bus.CreatedAt.Format(time.RFC3339),
	}
}

func toAppAuditEntries(entries []auditbus.Entry) []AuditEntry {
	app := make([]AuditEntry, len(entries))
	for i, e := range entries {
		app[i] = toAppAuditEntry(e)
	}
	return app
}
