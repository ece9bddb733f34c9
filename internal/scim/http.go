package scim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	contentType = "application/scim+json"

	usersPath  = "/Users"
	groupsPath = "/Groups"

	defaultTimeout   = 30 * time.Second
	defaultTokenPath = "/oauth2/token"

	maxErrorBody = 64 << 10
)

// HTTPOptions tunes the transport of an HTTPClient
type HTTPOptions struct {
	Timeout time.Duration
	// RateLimit is the maximum number of requests per second, 0 disables pacing
	RateLimit float64
	// TokenPath is appended to authorityUrl to build the token endpoint
	TokenPath string
	// Transport replaces the pooled default transport
	Transport http.RoundTripper
}

// HTTPClient is a SCIM 2.0 client over HTTP. It is safe for concurrent use.
type HTTPClient struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logging.SafeLogger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and builds a client. With an authorityUrl the
// client obtains a password-grant token up front, so bad credentials fail here.
func NewHTTPClient(ctx context.Context, cfg Config, opts HTTPOptions) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := opts.Transport
	if base == nil {
		base = newTransport()
	}
	traced := otelhttp.NewTransport(base)

	c := &HTTPClient{
		base:   cfg.BaseURL(),
		http:   &http.Client{Timeout: timeout, Transport: traced},
		logger: logging.Logger.With(zap.String("endpoint", cfg.BaseURL())),
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	switch {
	case cfg.AuthorityURL != "":
		tokenPath := opts.TokenPath
		if tokenPath == "" {
			tokenPath = defaultTokenPath
		}
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: strings.TrimRight(cfg.AuthorityURL, " /") + tokenPath,
			},
		}
		// the token source outlives ctx, refreshes must not be tied to it
		tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient,
			&http.Client{Timeout: timeout, Transport: traced})
		tok, err := oc.PasswordCredentialsToken(tokenCtx, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("obtain access token: %w", err)
		}
		c.http.Transport = &oauth2.Transport{Source: oc.TokenSource(tokenCtx, tok), Base: traced}
		c.logger.Info("scim client ready", zap.String("auth", "oauth2"))
	case cfg.Username != "":
		c.http.Transport = &basicAuthTransport{username: cfg.Username, password: cfg.Password, base: traced}
		c.logger.Info("scim client ready", zap.String("auth", "basic"))
	default:
		c.logger.Info("scim client ready", zap.String("auth", "none"))
	}

	return c, nil
}

// newTransport returns the pooled transport used for remote calls
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

func (c *HTTPClient) FindUserByUsername(ctx context.Context, username string) (*models.ScimUser, error) {
	var list models.ListResponse[models.ScimUser]
	if err := c.do(ctx, http.MethodGet, "users", usersPath, filterQuery("userName", username), nil, &list); err != nil {
		return nil, err
	}
	if len(list.Resources) == 0 {
		return nil, nil
	}
	return &list.Resources[0], nil
}

func (c *HTTPClient) GetUser(ctx context.Context, id string) (*models.ScimUser, error) {
	var user models.ScimUser
	if err := c.do(ctx, http.MethodGet, "users", resourcePath(usersPath, id), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, user *models.ScimUser) (*models.ScimUser, error) {
	if len(user.Schemas) == 0 {
		user.Schemas = []string{models.ScimUserSchema}
	}
	var created models.ScimUser
	if err := c.do(ctx, http.MethodPost, "users", usersPath, nil, user, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create user %q: response carries no id", user.UserName)
	}
	return &created, nil
}

func (c *HTTPClient) PatchUser(ctx context.Context, id string, ops []models.PatchOperation) (*models.ScimUser, error) {
	var patched models.ScimUser
	if err := c.do(ctx, http.MethodPatch, "users", resourcePath(usersPath, id), nil, models.NewPatchRequest(ops), &patched); err != nil {
		return nil, err
	}
	// 204 No Content leaves the body empty
	if patched.ID == "" {
		patched.ID = id
	}
	return &patched, nil
}

func (c *HTTPClient) DeleteUser(ctx context.Context, id string) error {
	return c.delete(ctx, "users", resourcePath(usersPath, id))
}

func (c *HTTPClient) FindGroupByDisplayName(ctx context.Context, name string) (*models.ScimGroup, error) {
	var list models.ListResponse[models.ScimGroup]
	if err := c.do(ctx, http.MethodGet, "groups", groupsPath, filterQuery("displayName", name), nil, &list); err != nil {
		return nil, err
	}
	if len(list.Resources) == 0 {
		return nil, nil
	}
	return &list.Resources[0], nil
}

func (c *HTTPClient) GetGroup(ctx context.Context, id string) (*models.ScimGroup, error) {
	var group models.ScimGroup
	if err := c.do(ctx, http.MethodGet, "groups", resourcePath(groupsPath, id), nil, nil, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *HTTPClient) CreateGroup(ctx context.Context, group *models.ScimGroup) (*models.ScimGroup, error) {
	if len(group.Schemas) == 0 {
		group.Schemas = []string{models.ScimGroupSchema}
	}
	var created models.ScimGroup
	if err := c.do(ctx, http.MethodPost, "groups", groupsPath, nil, group, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create group %q: response carries no id", group.DisplayName)
	}
	return &created, nil
}

func (c *HTTPClient) PatchGroup(ctx context.Context, id string, ops []models.PatchOperation) (*models.ScimGroup, error) {
	var patched models.ScimGroup
	if err := c.do(ctx, http.MethodPatch, "groups", resourcePath(groupsPath, id), nil, models.NewPatchRequest(ops), &patched); err != nil {
		return nil, err
	}
	if patched.ID == "" {
		patched.ID = id
	}
	return &patched, nil
}

func (c *HTTPClient) DeleteGroup(ctx context.Context, id string) error {
	return c.delete(ctx, "groups", resourcePath(groupsPath, id))
}

// delete treats an already missing resource as deleted
func (c *HTTPClient) delete(ctx context.Context, resource, path string) error {
	err := c.do(ctx, http.MethodDelete, resource, path, nil, nil, nil)
	if errors.Is(err, ErrNotFound) {
		c.logger.Debug("resource already absent", zap.String("path", path))
		return nil
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, resource, path string, query url.Values, in, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Method: method, Path: path, Err: err}
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", resource, err)
		}
		body = bytes.NewReader(data)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("Accept", contentType+", application/json")
	if in != nil {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.RemoteRequests.WithLabelValues(method, resource, "error").Inc()
		return &Error{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	observability.RemoteRequests.WithLabelValues(method, resource, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug("scim request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		return responseError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", resource, err)
	}
	return nil
}

// responseError builds an Error from a non-2xx response, keeping the SCIM detail when present
func responseError(method, path string, resp *http.Response) *Error {
	e := &Error{StatusCode: resp.StatusCode, Method: method, Path: path}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Detail   string `json:"detail"`
		ScimType string `json:"scimType"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Detail != "" {
		e.Detail = payload.Detail
		if payload.ScimType != "" {
			e.Detail = payload.ScimType + ": " + payload.Detail
		}
		return e
	}

	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	e.Detail = text
	return e
}

func resourcePath(collection, id string) string {
	return collection + "/" + url.PathEscape(id)
}

// filterQuery builds `attr eq "value"` with the value quoted per RFC 7644
func filterQuery(attribute, value string) url.Values {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return url.Values{"filter": []string{attribute + ` eq "` + escaped + `"`}}
}
