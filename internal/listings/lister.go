package listings

import (
	"context"
	"fmt"

	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/pkg/logging"
)

// Source fetches listing pages from the API.
type Source interface {
	ListAppointments(ctx context.Context, q museumapi.AppointmentQuery) (*museumapi.AppointmentPage, error)
	AdminAppointments(ctx context.Context, q museumapi.AppointmentQuery) (*museumapi.AppointmentPage, error)
}

// Lister serves listings from the cache and falls back to the API. A nil
// cache, or a cache error, sends every call to the API.
type Lister struct {
	source Source
	cache  *Cache
	owner  string
	logger *logging.Logger
}

func NewLister(source Source, cache *Cache, logger *logging.Logger) *Lister {
	if logger == nil {
		logger = logging.Default()
	}
	return &Lister{source: source, cache: cache, logger: logger}
}

// WithOwner keys cached pages by account so users never share pages.
func (l *Lister) WithOwner(owner string) *Lister {
	l.owner = owner
	return l
}

// List returns the caller's appointments.
func (l *Lister) List(ctx context.Context, q museumapi.AppointmentQuery) (*museumapi.AppointmentPage, error) {
	return l.list(ctx, ScopeOwn, q, l.source.ListAppointments)
}

// AdminList returns every appointment. Admin only.
func (l *Lister) AdminList(ctx context.Context, q museumapi.AppointmentQuery) (*museumapi.AppointmentPage, error) {
	return l.list(ctx, ScopeAdmin, q, l.source.AdminAppointments)
}

func (l *Lister) list(ctx context.Context, scope Scope, q museumapi.AppointmentQuery,
	fetch func(context.Context, museumapi.AppointmentQuery) (*museumapi.AppointmentPage, error)) (*museumapi.AppointmentPage, error) {
	if l.cache != nil {
		page, ok, err := l.cache.Get(ctx, scope, l.owner, q)
		if err != nil {
			l.logger.Warn("listing cache read failed", "error", err)
		} else if ok {
			return page, nil
		}
	}

	page, err := fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if l.cache != nil {
		if err := l.cache.Put(ctx, scope, l.owner, q, page); err != nil {
			l.logger.Warn("listing cache write failed", "error", err)
		}
	}
	return page, nil
}
