// Package scim talks to a remote SCIM 2.0 service provider.
package scim

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// Client is the remote protocol boundary. Lookups by unique key return
// (nil, nil) when nothing matches; reads by id return ErrNotFound.
type Client interface {
	FindUserByUsername(ctx context.Context, username string) (*models.ScimUser, error)
	GetUser(ctx context.Context, id string) (*models.ScimUser, error)
	CreateUser(ctx context.Context, user *models.ScimUser) (*models.ScimUser, error)
	PatchUser(ctx context.Context, id string, ops []models.PatchOperation) (*models.ScimUser, error)
	DeleteUser(ctx context.Context, id string) error

	FindGroupByDisplayName(ctx context.Context, name string) (*models.ScimGroup, error)
	GetGroup(ctx context.Context, id string) (*models.ScimGroup, error)
	CreateGroup(ctx context.Context, group *models.ScimGroup) (*models.ScimGroup, error)
	PatchGroup(ctx context.Context, id string, ops []models.PatchOperation) (*models.ScimGroup, error)
	DeleteGroup(ctx context.Context, id string) error
}

// Config identifies a remote endpoint and the credentials used against it
type Config struct {
	Endpoint     string
	AuthorityURL string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// ConfigFromComponent reads the connection settings of a component
func ConfigFromComponent(c *models.Component) Config {
	return Config{
		Endpoint:     c.Get(models.ConfigEndpoint),
		AuthorityURL: c.Get(models.ConfigAuthorityURL),
		Username:     c.Get(models.ConfigUsername),
		Password:     c.Get(models.ConfigPassword),
		ClientID:     c.Get(models.ConfigClientID),
		ClientSecret: c.Get(models.ConfigClientSecret),
	}
}

// Hash identifies the configuration. Any field change yields a new hash.
func (c Config) Hash() uint64 {
	d := xxhash.New()
	for _, field := range []string{c.Endpoint, c.AuthorityURL, c.Username, c.Password, c.ClientID, c.ClientSecret} {
		_, _ = d.WriteString(field)
		// separator so ("ab","c") and ("a","bc") differ
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// BaseURL returns the endpoint without trailing spaces or slashes
func (c Config) BaseURL() string {
	return strings.TrimRight(c.Endpoint, " /")
}

// Validate checks that the configuration can address a remote service
func (c Config) Validate() error {
	base := c.BaseURL()
	if base == "" {
		return fmt.Errorf("%s is required", models.ConfigEndpoint)
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q", models.ConfigEndpoint, c.Endpoint)
	}
	if c.AuthorityURL != "" {
		if _, err := url.Parse(c.AuthorityURL); err != nil {
			return fmt.Errorf("invalid %s: %w", models.ConfigAuthorityURL, err)
		}
	}
	return nil
}

// Factory builds a validated client for a configuration
type Factory func(ctx context.Context, cfg Config) (Client, error)
