// Package teamapi is the typed client for the teams service. Every call goes
// through the outbound httpclient, so retries, the envelope contract and the
// error taxonomy apply uniformly; results come back as
// httpclient.Result values carrying *apperr.Error on failure.
package teamapi

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/tbourn/teamhub/internal/httpclient"
)

// DefaultAPIPath is where the service mounts its API routes.
const DefaultAPIPath = "/api"

// Team mirrors the server's team resource.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User mirrors the server's user resource.
type User struct {
	ID        string    `json:"id"`
	TeamID    *string   `json:"team_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pagination is list metadata.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// TeamPage is one page of teams.
type TeamPage struct {
	Teams      []Team     `json:"teams"`
	Pagination Pagination `json:"pagination"`
}

// UserPage is one page of users.
type UserPage struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// Login is a successful credential exchange.
type Login struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Health is the liveness payload.
type Health struct {
	Status string `json:"status"`
}

// TeamInput creates or updates a team.
type TeamInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UserInput registers a user.
type UserInput struct {
	TeamID   *string `json:"team_id,omitempty"`
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password string  `json:"password"`
}

// ListOptions selects a page. Zero values use the server defaults.
type ListOptions struct {
	Page     int
	PageSize int
}

func (o ListOptions) query(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	return q
}

// Client calls the teams service.
type Client struct {
	http    *httpclient.Client
	session *Session
	apiPath string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIPath overrides DefaultAPIPath.
func WithAPIPath(p string) Option {
	return func(c *Client) {
		if p == "" || p == "/" {
			c.apiPath = ""
			return
		}
		if p[0] != '/' {
			p = "/" + p
		}
		for len(p) > 1 && p[len(p)-1] == '/' {
			p = p[:len(p)-1]
		}
		c.apiPath = p
	}
}

// New wraps hc. It installs the standard request stages (request ID, trace
// propagation, bearer auth from session) and the correlation error stage.
// A nil session starts signed out.
func New(hc *httpclient.Client, session *Session, opts ...Option) *Client {
	if session == nil {
		session = NewSession("")
	}
	c := &Client{http: hc, session: session, apiPath: DefaultAPIPath}
	for _, opt := range opts {
		opt(c)
	}
	hc.UseRequestInterceptor(httpclient.RequestID())
	hc.UseRequestInterceptor(httpclient.TracePropagation())
	hc.UseRequestInterceptor(httpclient.BearerAuth(session))
	hc.UseErrorInterceptor(httpclient.CorrelationEnricher())
	return c
}

// HTTP exposes the underlying client for extra interceptors.
func (c *Client) HTTP() *httpclient.Client { return c.http }

// Session returns the token holder used by this client.
func (c *Client) Session() *Session { return c.session }

func (c *Client) path(p string) string { return c.apiPath + p }

func (c *Client) pathf(p, id string) string { return c.apiPath + p + "/" + url.PathEscape(id) }

// Login exchanges credentials for a token and stores it in the session.
func (c *Client) Login(ctx context.Context, email, password string) httpclient.Result[Login] {
	res := httpclient.Post[Login](ctx, c.http, c.path("/auth/login"), map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if l, ok := res.Value(); ok {
		uid := ""
		if l.User != nil {
			uid = l.User.ID
		}
		c.session.Set(l.Token, uid, l.ExpiresAt)
	}
	return res
}

// Logout revokes the session token. The local session is cleared even when
// the server call fails.
func (c *Client) Logout(ctx context.Context) httpclient.Result[struct{}] {
	res := httpclient.Post[struct{}](ctx, c.http, c.path("/auth/logout"), nil, nil)
	c.session.Clear()
	return res
}

// ListTeams returns one page of teams.
func (c *Client) ListTeams(ctx context.Context, opts ListOptions) httpclient.Result[TeamPage] {
	return httpclient.Get[TeamPage](ctx, c.http, withQuery(c.path("/teams"), opts.query(nil)), nil)
}

// CreateTeam creates a team owned by the signed-in user.
func (c *Client) CreateTeam(ctx context.Context, in TeamInput) httpclient.Result[Team] {
	return httpclient.Post[Team](ctx, c.http, c.path("/teams"), in, nil)
}

// GetTeam fetches one team.
func (c *Client) GetTeam(ctx context.Context, id string) httpclient.Result[Team] {
	return httpclient.Get[Team](ctx, c.http, c.pathf("/teams", id), nil)
}

// UpdateTeam replaces a team's name and description.
func (c *Client) UpdateTeam(ctx context.Context, id string, in TeamInput) httpclient.Result[Team] {
	return httpclient.Put[Team](ctx, c.http, c.pathf("/teams", id), in, nil)
}

// DeleteTeam removes an empty team.
func (c *Client) DeleteTeam(ctx context.Context, id string) httpclient.Result[struct{}] {
	return httpclient.Delete[struct{}](ctx, c.http, c.pathf("/teams", id), nil)
}

// ListUsers returns one page of users, optionally within teamID.
func (c *Client) ListUsers(ctx context.Context, teamID string, opts ListOptions) httpclient.Result[UserPage] {
	q := url.Values{}
	if teamID != "" {
		q.Set("team_id", teamID)
	}
	return httpclient.Get[UserPage](ctx, c.http, withQuery(c.path("/users"), opts.query(q)), nil)
}

// CreateUser registers a user. It does not need a session.
func (c *Client) CreateUser(ctx context.Context, in UserInput) httpclient.Result[User] {
	return httpclient.Post[User](ctx, c.http, c.path("/users"), in, nil)
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, id string) httpclient.Result[User] {
	return httpclient.Get[User](ctx, c.http, c.pathf("/users", id), nil)
}

// DeleteUser removes the signed-in user's own account.
func (c *Client) DeleteUser(ctx context.Context, id string) httpclient.Result[struct{}] {
	return httpclient.Delete[struct{}](ctx, c.http, c.pathf("/users", id), nil)
}

// Health calls the liveness probe, which lives outside the API path.
func (c *Client) Health(ctx context.Context) httpclient.Result[Health] {
	return httpclient.Get[Health](ctx, c.http, "/health", nil)
}

func withQuery(p string, q url.Values) string {
	if len(q) == 0 {
		return p
	}
	return p + "?" + q.Encode()
}
