package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// Memory is an in-memory Directory. Safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	realms     map[string]*models.Realm
	users      map[key]*models.User
	groups     map[key]*models.Group
	roles      map[key]*models.Role
	components map[key]*models.Component
}

type key struct {
	realm string
	id    string
}

// NewMemory returns an empty Memory directory
func NewMemory() *Memory {
	return &Memory{
		realms:     make(map[string]*models.Realm),
		users:      make(map[key]*models.User),
		groups:     make(map[key]*models.Group),
		roles:      make(map[key]*models.Role),
		components: make(map[key]*models.Component),
	}
}

func (m *Memory) PutRealm(r *models.Realm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.realms[r.ID] = &cp
}

func (m *Memory) PutUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[key{u.RealmID, u.ID}] = u.Clone()
}

func (m *Memory) PutGroup(g *models.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[key{g.RealmID, g.ID}] = g.Clone()
}

func (m *Memory) PutRole(r *models.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.roles[key{r.RealmID, r.ID}] = &cp
}

func (m *Memory) PutComponent(c *models.Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[key{c.RealmID, c.ID}] = c.Clone()
}

func (m *Memory) DeleteUser(realmID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, key{realmID, userID})
}

func (m *Memory) DeleteGroup(realmID, groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, key{realmID, groupID})
}

func (m *Memory) GetRealm(_ context.Context, realmID string) (*models.Realm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.realms[realmID]
	if !ok {
		return nil, models.ErrRealmNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) GetUser(_ context.Context, realmID, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[key{realmID, userID}]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (m *Memory) GetUserByUsername(_ context.Context, realmID, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, u := range m.users {
		if k.realm == realmID && u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *Memory) GetGroup(_ context.Context, realmID, groupID string) (*models.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[key{realmID, groupID}]
	if !ok {
		return nil, models.ErrGroupNotFound
	}
	return g.Clone(), nil
}

func (m *Memory) GetGroupByName(_ context.Context, realmID, name string) (*models.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, g := range m.groups {
		if k.realm == realmID && g.Name == name {
			return g.Clone(), nil
		}
	}
	return nil, models.ErrGroupNotFound
}

func (m *Memory) GetRole(_ context.Context, realmID, roleID string) (*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[key{realmID, roleID}]
	if !ok {
		return nil, models.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) ListGroups(_ context.Context, realmID string) ([]*models.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Group, 0)
	for k, g := range m.groups {
		if k.realm == realmID {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SearchUsers(_ context.Context, realmID string, q UserQuery) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make(map[string]bool, len(q.FederationLinks))
	for _, l := range q.FederationLinks {
		links[l] = true
	}

	matched := make([]*models.User, 0)
	for k, u := range m.users {
		if k.realm != realmID {
			continue
		}
		if q.Enabled != nil && u.Enabled != *q.Enabled {
			continue
		}
		if len(links) > 0 && !links[u.FederationLink] {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if q.Offset >= len(matched) {
		return []*models.User{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*models.User, len(matched))
	for i, u := range matched {
		out[i] = u.Clone()
	}
	return out, nil
}

func (m *Memory) SetUserExternalID(_ context.Context, realmID, userID, componentID, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[key{realmID, userID}]
	if !ok {
		return models.ErrUserNotFound
	}
	if u.ExternalIDs == nil {
		u.ExternalIDs = make(map[string]string)
	}
	u.ExternalIDs[componentID] = externalID
	return nil
}

func (m *Memory) SetGroupExternalID(_ context.Context, realmID, groupID, componentID, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[key{realmID, groupID}]
	if !ok {
		return models.ErrGroupNotFound
	}
	if g.ExternalIDs == nil {
		g.ExternalIDs = make(map[string]string)
	}
	g.ExternalIDs[componentID] = externalID
	return nil
}

func (m *Memory) ClearGroupExternalID(_ context.Context, realmID, groupID, componentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// the group is typically already deleted locally
	if g, ok := m.groups[key{realmID, groupID}]; ok {
		delete(g.ExternalIDs, componentID)
	}
	return nil
}

func (m *Memory) RemoveGroupAttribute(_ context.Context, realmID, groupID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[key{realmID, groupID}]
	if !ok {
		return models.ErrGroupNotFound
	}
	delete(g.Attributes, name)
	return nil
}

func (m *Memory) ListComponents(_ context.Context, realmID, providerID string) ([]*models.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Component, 0)
	for k, c := range m.components {
		if k.realm == realmID && (providerID == "" || c.ProviderID == providerID) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetComponent(_ context.Context, realmID, componentID string) (*models.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.components[key{realmID, componentID}]
	if !ok {
		return nil, models.ErrComponentNotFound
	}
	return c.Clone(), nil
}
