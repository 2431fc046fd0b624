// Package client provides the HTTP client used to probe a backend under
// test: base-URL-relative requests, bearer token handling via the admin
// login endpoint, bounded response reads, and optional SOCKS5 proxying.
package client
