// Package scimtest provides an in-memory SCIM 2.0 service provider.
package scimtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/patch"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
)

const basePath = "/scim/v2"

// Server is a SCIM service provider backed by maps. Patch requests go
// through the same applier the diff engine is tested against.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]*models.ScimUser
	groups   map[string]*models.ScimGroup
	seq      int
	requests []string
	failures map[string][]int
	username string
	password string
}

// NewServer starts a server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		users:    make(map[string]*models.ScimUser),
		groups:   make(map[string]*models.ScimGroup),
		failures: make(map[string][]int),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// Config returns a client configuration pointing at the server
func (s *Server) Config() scim.Config {
	return scim.Config{Endpoint: s.URL + basePath + "/", Username: s.username, Password: s.password}
}

// RequireBasicAuth rejects requests without these credentials
func (s *Server) RequireBasicAuth(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.password = username, password
}

// FailNext makes the next requests with method answer with the given statuses, in order
func (s *Server) FailNext(method string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], statuses...)
}

// Requests returns "METHOD /path" for every request received
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// RequestCount returns the number of requests received
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// ResetRequests clears the request log
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// PutUser stores u, assigning an id when missing, and returns the id
func (s *Server) PutUser(u models.ScimUser) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.newID("u")
	}
	s.users[u.ID] = patch.CloneUser(&u)
	return u.ID
}

// PutGroup stores g, assigning an id when missing, and returns the id
func (s *Server) PutGroup(g models.ScimGroup) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = s.newID("g")
	}
	s.groups[g.ID] = patch.CloneGroup(&g)
	return g.ID
}

// User returns a copy of the user with id
func (s *Server) User(id string) (*models.ScimUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	return patch.CloneUser(u), true
}

// Group returns a copy of the group with id
func (s *Server) Group(id string) (*models.ScimGroup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, false
	}
	return patch.CloneGroup(g), true
}

// Users returns copies of all users ordered by id
func (s *Server) Users() []*models.ScimUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ScimUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, patch.CloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Groups returns copies of all groups ordered by id
func (s *Server) Groups() []*models.ScimGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ScimGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, patch.CloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UserByName returns the user with userName, if any
func (s *Server) UserByName(name string) (*models.ScimUser, bool) {
	for _, u := range s.Users() {
		if u.UserName == name {
			return u, true
		}
	}
	return nil, false
}

// GroupByName returns the group with displayName, if any
func (s *Server) GroupByName(name string) (*models.ScimGroup, bool) {
	for _, g := range s.Groups() {
		if g.DisplayName == name {
			return g, true
		}
	}
	return nil, false
}

func (s *Server) newID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.record)

	v2 := r.Group(basePath)
	v2.GET("/Users", s.listUsers)
	v2.POST("/Users", s.createUser)
	v2.GET("/Users/:id", s.getUser)
	v2.PATCH("/Users/:id", s.patchUser)
	v2.DELETE("/Users/:id", s.deleteUser)

	v2.GET("/Groups", s.listGroups)
	v2.POST("/Groups", s.createGroup)
	v2.GET("/Groups/:id", s.getGroup)
	v2.PATCH("/Groups/:id", s.patchGroup)
	v2.DELETE("/Groups/:id", s.deleteGroup)
	return r
}

// record logs the request and applies auth and injected failures
func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, c.Request.Method+" "+c.Request.URL.Path)
	user, pass := s.username, s.password
	var fail int
	if queue := s.failures[c.Request.Method]; len(queue) > 0 {
		fail, s.failures[c.Request.Method] = queue[0], queue[1:]
	}
	s.mu.Unlock()

	if user != "" {
		u, p, ok := c.Request.BasicAuth()
		if !ok || u != user || p != pass {
			scimError(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
	}
	if fail != 0 {
		scimError(c, fail, "injected failure")
		return
	}
	c.Next()
}

func scimError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{
		"schemas": []string{models.ScimErrorSchema},
		"status":  fmt.Sprint(status),
		"detail":  detail,
	})
}

// parseFilter understands `attr eq "value"`
func parseFilter(filter string) (attr, value string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(filter), " ", 3)
	if len(parts) != 3 || !strings.EqualFold(parts[1], "eq") {
		return "", "", false
	}
	value = parts[2]
	if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
		return "", "", false
	}
	value = strings.NewReplacer(`\\`, `\`, `\"`, `"`).Replace(value[1 : len(value)-1])
	return parts[0], value, true
}

func (s *Server) listUsers(c *gin.Context) {
	var match func(u *models.ScimUser) bool
	if filter := c.Query("filter"); filter != "" {
		attr, value, ok := parseFilter(filter)
		if !ok || attr != "userName" {
			scimError(c, http.StatusBadRequest, "unsupported filter")
			return
		}
		match = func(u *models.ScimUser) bool { return strings.EqualFold(u.UserName, value) }
	}

	resources := []models.ScimUser{}
	for _, u := range s.Users() {
		if match == nil || match(u) {
			resources = append(resources, *u)
		}
	}
	c.JSON(http.StatusOK, models.ListResponse[models.ScimUser]{
		Schemas:      []string{models.ScimListSchema},
		TotalResults: len(resources),
		StartIndex:   1,
		ItemsPerPage: len(resources),
		Resources:    resources,
	})
}

func (s *Server) createUser(c *gin.Context) {
	var u models.ScimUser
	if err := c.ShouldBindJSON(&u); err != nil {
		scimError(c, http.StatusBadRequest, err.Error())
		return
	}
	if u.UserName == "" {
		scimError(c, http.StatusBadRequest, "userName is required")
		return
	}
	if _, exists := s.UserByName(u.UserName); exists {
		scimError(c, http.StatusConflict, "userName already exists")
		return
	}
	u.ID = ""
	u.Password = ""
	u.ID = s.PutUser(u)
	c.JSON(http.StatusCreated, u)
}

func (s *Server) getUser(c *gin.Context) {
	u, ok := s.User(c.Param("id"))
	if !ok {
		scimError(c, http.StatusNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) patchUser(c *gin.Context) {
	var req models.PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		scimError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.Param("id")]
	if !ok {
		scimError(c, http.StatusNotFound, "user not found")
		return
	}
	patched, err := patch.ApplyUser(u, req.Operations)
	if err != nil {
		scimError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.users[u.ID] = patched
	c.JSON(http.StatusOK, patch.CloneUser(patched))
}

func (s *Server) deleteUser(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.users[id]; !ok {
		scimError(c, http.StatusNotFound, "user not found")
		return
	}
	delete(s.users, id)
	for _, g := range s.groups {
		kept := g.Members[:0]
		for _, m := range g.Members {
			if m.Value != id {
				kept = append(kept, m)
			}
		}
		g.Members = kept
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listGroups(c *gin.Context) {
	var match func(g *models.ScimGroup) bool
	if filter := c.Query("filter"); filter != "" {
		attr, value, ok := parseFilter(filter)
		if !ok || attr != "displayName" {
			scimError(c, http.StatusBadRequest, "unsupported filter")
			return
		}
		match = func(g *models.ScimGroup) bool { return g.DisplayName == value }
	}

	resources := []models.ScimGroup{}
	for _, g := range s.Groups() {
		if match == nil || match(g) {
			resources = append(resources, *g)
		}
	}
	c.JSON(http.StatusOK, models.ListResponse[models.ScimGroup]{
		Schemas:      []string{models.ScimListSchema},
		TotalResults: len(resources),
		StartIndex:   1,
		ItemsPerPage: len(resources),
		Resources:    resources,
	})
}

func (s *Server) createGroup(c *gin.Context) {
	var g models.ScimGroup
	if err := c.ShouldBindJSON(&g); err != nil {
		scimError(c, http.StatusBadRequest, err.Error())
		return
	}
	if g.DisplayName == "" {
		scimError(c, http.StatusBadRequest, "displayName is required")
		return
	}
	if _, exists := s.GroupByName(g.DisplayName); exists {
		scimError(c, http.StatusConflict, "displayName already exists")
		return
	}
	g.ID = ""
	g.ID = s.PutGroup(g)
	c.JSON(http.StatusCreated, g)
}

func (s *Server) getGroup(c *gin.Context) {
	g, ok := s.Group(c.Param("id"))
	if !ok {
		scimError(c, http.StatusNotFound, "group not found")
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) patchGroup(c *gin.Context) {
	var req models.PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		scimError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[c.Param("id")]
	if !ok {
		scimError(c, http.StatusNotFound, "group not found")
		return
	}
	patched, err := patch.ApplyGroup(g, req.Operations)
	if err != nil {
		scimError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.groups[g.ID] = patched
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteGroup(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.groups[id]; !ok {
		scimError(c, http.StatusNotFound, "group not found")
		return
	}
	delete(s.groups, id)
	c.Status(http.StatusNoContent)
}
