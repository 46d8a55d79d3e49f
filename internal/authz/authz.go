// Package authz answers the three access questions every handler needs:
// can this user read a project, administer it, or administer the server
// itself. Server admins get an implicit yes to all three without a
// membership row.
package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/addaxai-connect/internal/data"
)

type MembershipProvider interface {
	GetGrants(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]data.ProjectRole, error)
}

type UserProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.User, error)
}

// Checker answers project-scoped and server-scoped access questions,
// caching each user's grant set for a short TTL so hot endpoints don't hit
// the database on every request.
type Checker struct {
	memberships MembershipProvider
	users       UserProvider
	cache       *grantCache
}

func NewChecker(memberships MembershipProvider, users UserProvider) *Checker {
	return &Checker{
		memberships: memberships,
		users:       users,
		cache:       newGrantCache(2000),
	}
}

type grants struct {
	isServerAdmin bool
	byProject     map[uuid.UUID]data.ProjectRole
}

func (c *Checker) load(ctx context.Context, userID uuid.UUID) (grants, error) {
	if g, ok := c.cache.get(userID); ok {
		return g, nil
	}

	u, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return grants{}, fmt.Errorf("authz: load user: %w", err)
	}
	byProject, err := c.memberships.GetGrants(ctx, userID)
	if err != nil {
		return grants{}, fmt.Errorf("authz: load grants: %w", err)
	}

	g := grants{isServerAdmin: u.IsServerAdmin, byProject: byProject}
	c.cache.set(userID, g, 60*time.Second)
	return g, nil
}

// CanRead reports whether the user may view a project's data: any
// membership role, or server-admin status, is sufficient.
func (c *Checker) CanRead(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	g, err := c.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if g.isServerAdmin {
		return true, nil
	}
	_, ok := g.byProject[projectID]
	return ok, nil
}

// CanAdmin reports whether the user may administer a project: only the
// project-admin role, or server-admin status.
func (c *Checker) CanAdmin(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	g, err := c.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if g.isServerAdmin {
		return true, nil
	}
	return g.byProject[projectID] == data.ProjectRoleAdmin, nil
}

// CanAdminServer reports server-admin status, the only role that can
// manage users, invitations, and camera inventory unscoped by project.
func (c *Checker) CanAdminServer(ctx context.Context, userID uuid.UUID) (bool, error) {
	g, err := c.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return g.isServerAdmin, nil
}

// Invalidate drops a user's cached grants, used after a membership or role change.
func (c *Checker) Invalidate(userID uuid.UUID) {
	c.cache.delete(userID)
}

type grantCache struct {
	sync.Mutex
	items    map[uuid.UUID]cacheEntry
	maxItems int
}

type cacheEntry struct {
	grants    grants
	expiresAt time.Time
}

func newGrantCache(maxItems int) *grantCache {
	return &grantCache{items: make(map[uuid.UUID]cacheEntry), maxItems: maxItems}
}

func (c *grantCache) get(id uuid.UUID) (grants, bool) {
	c.Lock()
	defer c.Unlock()
	e, ok := c.items[id]
	if !ok {
		return grants{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, id)
		return grants{}, false
	}
	return e.grants, true
}

func (c *grantCache) set(id uuid.UUID, g grants, ttl time.Duration) {
	c.Lock()
	defer c.Unlock()
	if len(c.items) >= c.maxItems {
		for k := range c.items {
			delete(c.items, k)
			break
		}
	}
	c.items[id] = cacheEntry{grants: g, expiresAt: time.Now().Add(ttl)}
}

func (c *grantCache) delete(id uuid.UUID) {
	c.Lock()
	defer c.Unlock()
	delete(c.items, id)
}
