package tenantapp

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/schoolplane/platform/business/types/subscription"
)

type queryParams struct {
	Page             string
	Rows             string
	OrderBy          string
	ID               string
	Name             string
	Subdomain        string
	Status           string
	StartCreatedDate string
	EndCreatedDate   string
}

func parseQueryParams(r *http.Request) queryParams {
	values := r.URL.Query()

	return queryParams{
		Page:             values.Get("page"),
		Rows:             values.Get("rows"),
		OrderBy:          values.Get("orderBy"),
		ID:               values.Get("tenant_id"),
		Name:             values.Get("name"),
		Subdomain:        values.Get("subdomain"),
		Status:           values.Get("status"),
		StartCreatedDate: values.Get("start_created_date"),
		EndCreatedDate:   values.Get("end_created_date"),
	}
}

// parseFilter validates the raw query parameters and converts them to the
// domain filter. Validation failures come back aggregated as FieldErrors.
func parseFilter(qp queryParams) (tenantbus.QueryFilter, error) {
	var fieldErrors errs.FieldErrors
	var filter tenantbus.QueryFilter

	if qp.ID != "" {
		id, err := uuid.Parse(qp.ID)
		switch err {
		case nil:
			filter.ID = &id
		default:
			fieldErrors.Add("tenant_id", err)
		}
	}

	if qp.Name != "" {
		nme, err := name.Parse(qp.Name)
		switch err {
		case nil:
			filter.Name = &nme
		default:
			fieldErrors.Add("name", err)
		}
	}

	if qp.Subdomain != "" {
		sub, err := subdomain.Parse(qp.Subdomain)
		switch err {
		case nil:
			s := sub.String()
			filter.Subdomain = &s
		default:
			fieldErrors.Add("subdomain", err)
		}
	}

	if qp.Status != "" {
		status, err := subscription.Parse(qp.Status)
		switch err {
		case nil:
			filter.Status = &status
		default:
			fieldErrors.Add("status", err)
		}
	}

	if qp.StartCreatedDate != "" {
		t, err := time.Parse(time.RFC3339, qp.StartCreatedDate)
		switch err {
		case nil:
			filter.StartCreatedAt = &t
		default:
			fieldErrors.Add("start_created_date", err)
		}
	}

	if qp.EndCreatedDate != "" {
		t, err := time.Parse(time.RFC3339, qp.EndCreatedDate)
		switch err {
		case nil:
			filter.EndCreatedAt = &t
		default:
			fieldErrors.Add("end_created_date", err)
		}
	}

	if fieldErrors != nil {
		return tenantbus.QueryFilter{}, fieldErrors.ToError()
	}

	return filter, nil
}
