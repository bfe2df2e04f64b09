// Package server is the small HTTP surface of tubesync.
//
// [BasicRouter] registers method patterns on an [http.ServeMux] behind a [Middleware] stack
// ([Logging], [Recover]). Two handlers are mounted on it:
//   - [HealthHandler] : GET /healthz on a running sync worker, reporting queue depth and the next sweep
//   - [OAuthHandler] : GET /callback during `tubesync auth youtube`, exchanging the code for a token
//
// [Server] runs a router until its context ends and then shuts down gracefully.
package server
