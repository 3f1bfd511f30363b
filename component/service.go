// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package component

import (
	"context"
	"time"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/motherjones/mirrors/schema"
)

var mon = monkit.Package()

// DB bundles the databases the service operates on.
//
// architecture: Database
type DB interface {
	Components() Components
	Revisions() Revisions
	Attributes() Attributes
	Locks() Locks
}

// Service carries the component store's invariants on top of the databases:
// revision validation and the version-race retry, attribute cardinality
// branching, and the lock lifecycle.
//
// architecture: Service
type Service struct {
	log *zap.Logger
	db  DB
	now func() time.Time
}

// NewService creates a new component service.
func NewService(log *zap.Logger, db DB) *Service {
	return &Service{
		log: log,
		db:  db,
		now: time.Now,
	}
}

// TestSetNow overrides the clock used for timestamps and lease expiry.
func (service *Service) TestSetNow(now func() time.Time) {
	service.now = now
}

// Create validates and inserts a new component record.
func (service *Service) Create(ctx context.Context, component *Component) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := component.Key().Validate(); err != nil {
		return err
	}
	if component.ContentType == "" {
		component.ContentType = DefaultContentType
	}

	now := service.now().UTC()
	component.CreatedAt = now
	component.UpdatedAt = now

	return service.db.Components().Create(ctx, component)
}

// Get returns the component addressed by key.
func (service *Service) Get(ctx context.Context, key Key) (_ *Component, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := key.Validate(); err != nil {
		return nil, err
	}
	return service.db.Components().Get(ctx, key)
}

// GetByID returns the component with the given ID.
func (service *Service) GetByID(ctx context.Context, id int64) (_ *Component, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Components().GetByID(ctx, id)
}

// Update rewrites a component record and refreshes its updated time.
// Revisions never touch this timestamp; only mutations of the record itself do.
func (service *Service) Update(ctx context.Context, component *Component) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := component.Key().Validate(); err != nil {
		return err
	}
	component.UpdatedAt = service.now().UTC()

	return service.db.Components().Update(ctx, component)
}

// Delete removes a component. Cascade also removes its revisions,
// attributes and locks; otherwise they are orphaned for audit.
func (service *Service) Delete(ctx context.Context, key Key, cascade bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := key.Validate(); err != nil {
		return err
	}
	return service.db.Components().Delete(ctx, key, cascade)
}

// List returns all components.
func (service *Service) List(ctx context.Context) (_ []*Component, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Components().List(ctx)
}

// NewRevision appends a revision carrying data, metadata or both. The first
// revision of a component must carry data. A version-slot race against a
// concurrent append is retried once before surfacing ErrConflict.
func (service *Service) NewRevision(ctx context.Context, componentID int64, data []byte, metadata Document) (_ *Revision, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(data) == 0 && len(metadata) == 0 {
		return nil, ErrValidation.New("revision carries neither data nor metadata")
	}

	created := service.now().UTC()
	revision, err := service.db.Revisions().Append(ctx, componentID, data, metadata, created)
	if ErrConflict.Has(err) {
		revision, err = service.db.Revisions().Append(ctx, componentID, data, metadata, created)
	}
	return revision, err
}

// MaxVersion returns the highest revision version, or 0 for none.
func (service *Service) MaxVersion(ctx context.Context, componentID int64) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Revisions().MaxVersion(ctx, componentID)
}

// CurrentData returns the most recent revision data, or nil if no revision
// carries data.
func (service *Service) CurrentData(ctx context.Context, componentID int64) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Revisions().CurrentData(ctx, componentID)
}

// CurrentMetadata returns the most recent revision metadata, or an empty
// document if no revision carries metadata.
func (service *Service) CurrentMetadata(ctx context.Context, componentID int64) (_ Document, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Revisions().CurrentMetadata(ctx, componentID)
}

// DataAt returns the data as of the bounding version.
func (service *Service) DataAt(ctx context.Context, componentID int64, version int) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Revisions().DataAt(ctx, componentID, version)
}

// MetadataAt returns the metadata as of the bounding version.
func (service *Service) MetadataAt(ctx context.Context, componentID int64, version int) (_ Document, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Revisions().MetadataAt(ctx, componentID, version)
}

// Revisions lists the full revision history of a component.
func (service *Service) Revisions(ctx context.Context, componentID int64) (_ []*Revision, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Revisions().List(ctx, componentID)
}

// SetAttribute writes a named edge from parent to child. Weight SingleWeight
// replaces any prior single value under the name; any other weight appends
// to the ordered list under the name.
func (service *Service) SetAttribute(ctx context.Context, parentID int64, name string, childID int64, weight int) (_ *Attribute, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := ValidateAttributeName(name); err != nil {
		return nil, err
	}
	if childID == 0 {
		return nil, ErrInvalidArgument.New("attribute child is required")
	}
	if childID == parentID {
		return nil, ErrInvalidArgument.New("attribute cannot reference its own parent")
	}
	if _, err := service.db.Components().GetByID(ctx, parentID); err != nil {
		return nil, err
	}
	if _, err := service.db.Components().GetByID(ctx, childID); err != nil {
		return nil, err
	}

	attr := &Attribute{
		ParentID:  parentID,
		ChildID:   childID,
		Name:      name,
		Weight:    weight,
		AddedTime: service.now().UTC(),
	}
	err = service.db.Attributes().Set(ctx, attr)
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// GetAttribute resolves a named attribute to either a single component or an
// ordered list, branching on how many rows exist and on the single-value
// weight sentinel.
func (service *Service) GetAttribute(ctx context.Context, parentID int64, name string) (_ Value, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := service.db.Attributes().Get(ctx, parentID, name)
	if err != nil {
		return Value{}, err
	}

	switch {
	case len(rows) == 0:
		return Value{}, ErrNotFound.New("attribute %q", name)
	case len(rows) == 1 && rows[0].Weight == SingleWeight:
		child, err := service.db.Components().GetByID(ctx, rows[0].ChildID)
		if err != nil {
			return Value{}, err
		}
		return Value{Single: child}, nil
	default:
		list := make([]*Component, 0, len(rows))
		for _, row := range rows {
			child, err := service.db.Components().GetByID(ctx, row.ChildID)
			if err != nil {
				return Value{}, err
			}
			list = append(list, child)
		}
		return Value{List: list}, nil
	}
}

// GetAttributeAt returns the child at the given position in weight order.
func (service *Service) GetAttributeAt(ctx context.Context, parentID int64, name string, index int) (_ *Component, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := service.db.Attributes().Get(ctx, parentID, name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound.New("attribute %q", name)
	}
	if index < 0 || index >= len(rows) {
		return nil, ErrOutOfRange.New("index %d of attribute %q", index, name)
	}
	return service.db.Components().GetByID(ctx, rows[index].ChildID)
}

// DeleteAttribute removes all rows under a name.
func (service *Service) DeleteAttribute(ctx context.Context, parentID int64, name string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Attributes().Delete(ctx, parentID, name)
}

// DeleteAttributeAt removes the row at the given position in weight order.
func (service *Service) DeleteAttributeAt(ctx context.Context, parentID int64, name string, index int) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Attributes().DeleteAt(ctx, parentID, name, index)
}

// Lock acquires an editing lease on a component for holder. Any active
// lock, including one held by the same holder, causes ErrConflict wrapping
// a LockConflictError. A zero duration uses DefaultLockDuration.
func (service *Service) Lock(ctx context.Context, componentID int64, holder string, duration time.Duration) (_ *Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	if holder == "" {
		return nil, ErrValidation.New("lock holder is required")
	}
	if duration < 0 {
		return nil, ErrValidation.New("lock duration must be positive")
	}
	if duration == 0 {
		duration = DefaultLockDuration
	}

	now := service.now().UTC()
	return service.db.Locks().Acquire(ctx, componentID, holder, now, now.Add(duration))
}

// ExtendLock moves the active lease's end forward by delta.
func (service *Service) ExtendLock(ctx context.Context, componentID int64, delta time.Duration) (_ *Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	if delta <= 0 {
		return nil, ErrValidation.New("lock extension must be positive")
	}
	return service.db.Locks().Extend(ctx, componentID, delta, service.now().UTC())
}

// Unlock breaks the active lock on behalf of holder. Any principal may
// break a lock; holder is recorded for the audit trail, not checked against
// the lease. Unlocking an unlocked component is a no-op.
func (service *Service) Unlock(ctx context.Context, componentID int64, holder string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if holder == "" {
		return ErrValidation.New("unlock requires a principal")
	}
	service.log.Debug("breaking lock",
		zap.Int64("component_id", componentID),
		zap.String("holder", holder))
	return service.db.Locks().Break(ctx, componentID, service.now().UTC())
}

// CurrentLock returns the active lock, or nil when the component is unlocked.
func (service *Service) CurrentLock(ctx context.Context, componentID int64) (_ *Lock, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Locks().Current(ctx, componentID, service.now().UTC())
}

// LockStatus computes the three-state view of a component's latest lock so
// call sites do not re-derive the expiry predicate.
func (service *Service) LockStatus(ctx context.Context, componentID int64) (_ LockState, err error) {
	defer mon.Task()(&ctx)(&err)

	history, err := service.db.Locks().History(ctx, componentID)
	if err != nil {
		return Unlocked, err
	}
	if len(history) == 0 {
		return Unlocked, nil
	}
	return history[0].State(service.now().UTC()), nil
}

// LockHistory returns the component's full lock audit trail, newest first.
func (service *Service) LockHistory(ctx context.Context, componentID int64) (_ []*Lock, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Locks().History(ctx, componentID)
}

// Validate checks a component against its declared schema using the
// registry and returns all structural findings.
func (service *Service) Validate(ctx context.Context, componentID int64, registry *schema.Registry) (_ []schema.Issue, err error) {
	defer mon.Task()(&ctx)(&err)

	component, err := service.db.Components().GetByID(ctx, componentID)
	if err != nil {
		return nil, err
	}
	if component.SchemaName == "" {
		return nil, ErrValidation.New("component %q declares no schema", component.Slug)
	}

	desc, err := registry.Lookup(component.SchemaName)
	if err != nil {
		return nil, err
	}

	metadata, err := service.db.Revisions().CurrentMetadata(ctx, componentID)
	if err != nil {
		return nil, err
	}

	rows, err := service.db.Attributes().ListAll(ctx, componentID)
	if err != nil {
		return nil, err
	}
	attributes := make(map[string]schema.Cardinality)
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.Name]++
		if row.Weight != SingleWeight || counts[row.Name] > 1 {
			attributes[row.Name] = schema.List
		} else if _, seen := attributes[row.Name]; !seen {
			attributes[row.Name] = schema.Single
		}
	}

	snap := schema.Snapshot{
		ContentType: component.ContentType,
		Metadata:    metadata,
		Attributes:  attributes,
	}
	return schema.Validate(desc, snap), nil
}
