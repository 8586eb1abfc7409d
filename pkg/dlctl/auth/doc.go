// Package auth implements the dlctl OAuth 2.0 login subsystem: the
// authorization code flow with and without PKCE over a loopback redirect
// listener, the device authorization grant with a background poller, a
// capability probe that discovers which flows a client may use, and the
// orchestrator that picks a flow and falls back between them.
package auth
