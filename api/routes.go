package api

// Backend routes. Trailing slashes are significant: the server redirects
// slashless paths, and redirects drop the Authorization header.
const (
	RouteAuthLogin    = "/auth/login/"
	RouteAuthLogout   = "/auth/logout/"
	RouteTokenRefresh = "/token/refresh/"
	RouteUserMe       = "/users/me/"
)
