package services

import (
	"context"
	"time"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
	permission "github.com/sovrium/sovrium/modules/permission/services"
	"github.com/sovrium/sovrium/modules/record/domain/ports"
	"github.com/sovrium/sovrium/pkg/uuidv7"
)

const defaultListLimit = 200

// RecordService runs every record operation through the same sequence:
// authorization gate, field projection, store call. The store enforces the
// compiled row policies independently; this layer never trusts itself to be
// the only check. Deny outcomes come back as Decision values; the error
// return carries store failures only, and no retries happen here.
type RecordService struct {
	registry *permission.Registry
	store    ports.RecordStore
	now      func() time.Time
}

func NewRecordService(registry *permission.Registry, store ports.RecordStore) *RecordService {
	return &RecordService{registry: registry, store: store, now: time.Now}
}

// Create gates the operation, validates the payload field by field, injects
// the system-managed values, and persists. Nothing is written when any
// payload field is denied.
func (s *RecordService) Create(ctx context.Context, p types.Principal, table string, payload map[string]any) (map[string]any, types.Decision, error) {
	policy, ok := s.registry.Lookup(table)
	if !ok {
		return nil, types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationCreate, nil); !d.IsAllowed() {
		return nil, d, nil
	}
	if d := permission.PrepareCreate(policy, p, payload); !d.IsAllowed() {
		return nil, d, nil
	}

	values, d := permission.ProjectWrite(policy, p, types.OperationCreate, payload, payload)
	if !d.IsAllowed() {
		return nil, d, nil
	}

	id, err := uuidv7.NewString()
	if err != nil {
		return nil, types.Decision{}, err
	}
	values[permission.FieldID] = id
	if _, ok := policy.Field(permission.FieldCreatedAt); ok {
		values[permission.FieldCreatedAt] = s.now().UTC()
	}
	if policy.OrgScoped() {
		// PrepareCreate already refused principals without an organization.
		values[policy.OrganizationField] = p.OrganizationID
	}

	stored, err := s.store.Insert(ctx, p, table, values)
	if err != nil {
		return nil, types.Decision{}, err
	}
	return permission.ProjectRead(policy, p, stored), types.Allowed(), nil
}

// Get fetches one record. The gate runs twice: before the query for the
// table-level rule, and after the fetch with the row in hand so organization
// isolation and row-scoped conditions apply.
func (s *RecordService) Get(ctx context.Context, p types.Principal, table string, id string) (map[string]any, types.Decision, error) {
	policy, ok := s.registry.Lookup(table)
	if !ok {
		return nil, types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationRead, nil); !d.IsAllowed() {
		return nil, d, nil
	}

	row, found, err := s.store.GetByID(ctx, p, table, id)
	if err != nil {
		return nil, types.Decision{}, err
	}
	if !found {
		return nil, types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationRead, row); !d.IsAllowed() {
		return nil, d, nil
	}
	return permission.ProjectRead(policy, p, row), types.Allowed(), nil
}

// List returns the rows the principal may see, each filtered down to its
// readable fields. The store already hides inadmissible rows through its row
// policies; the per-row gate here keeps the layers in agreement even when
// the store is a test fake without them.
func (s *RecordService) List(ctx context.Context, p types.Principal, table string) ([]map[string]any, types.Decision, error) {
	policy, ok := s.registry.Lookup(table)
	if !ok {
		return nil, types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationRead, nil); !d.IsAllowed() {
		return nil, d, nil
	}

	rows, err := s.store.List(ctx, p, table, defaultListLimit)
	if err != nil {
		return nil, types.Decision{}, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if d := permission.Authorize(policy, p, types.OperationRead, row); !d.IsAllowed() {
			continue
		}
		out = append(out, permission.ProjectRead(policy, p, row))
	}
	return out, types.Allowed(), nil
}

// Update applies a partial write. The patch is all-or-nothing: the first
// denied field in declared order aborts before anything reaches the store.
func (s *RecordService) Update(ctx context.Context, p types.Principal, table string, id string, patch map[string]any) (map[string]any, types.Decision, error) {
	policy, ok := s.registry.Lookup(table)
	if !ok {
		return nil, types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationUpdate, nil); !d.IsAllowed() {
		return nil, d, nil
	}

	row, found, err := s.store.GetByID(ctx, p, table, id)
	if err != nil {
		return nil, types.Decision{}, err
	}
	if !found {
		return nil, types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationUpdate, row); !d.IsAllowed() {
		return nil, d, nil
	}

	if policy.OrgScoped() {
		if v, ok := patch[policy.OrganizationField]; ok {
			supplied, _ := v.(string)
			current, _ := row[policy.OrganizationField].(string)
			if supplied != current {
				return nil, types.Forbidden(types.ReasonOrgOverride, policy.OrganizationField), nil
			}
			delete(patch, policy.OrganizationField)
		}
	}

	values, d := permission.ProjectWrite(policy, p, types.OperationUpdate, patch, row)
	if !d.IsAllowed() {
		return nil, d, nil
	}
	if len(values) == 0 {
		return permission.ProjectRead(policy, p, row), types.Allowed(), nil
	}

	stored, found, err := s.store.Update(ctx, p, table, id, values)
	if err != nil {
		return nil, types.Decision{}, err
	}
	if !found {
		return nil, types.NotFound(), nil
	}
	return permission.ProjectRead(policy, p, stored), types.Allowed(), nil
}

// Delete removes one record after the same gate sequence as Update.
func (s *RecordService) Delete(ctx context.Context, p types.Principal, table string, id string) (types.Decision, error) {
	policy, ok := s.registry.Lookup(table)
	if !ok {
		return types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationDelete, nil); !d.IsAllowed() {
		return d, nil
	}

	row, found, err := s.store.GetByID(ctx, p, table, id)
	if err != nil {
		return types.Decision{}, err
	}
	if !found {
		return types.NotFound(), nil
	}
	if d := permission.Authorize(policy, p, types.OperationDelete, row); !d.IsAllowed() {
		return d, nil
	}

	deleted, err := s.store.Delete(ctx, p, table, id)
	if err != nil {
		return types.Decision{}, err
	}
	if !deleted {
		return types.NotFound(), nil
	}
	return types.Allowed(), nil
}
