// Package handlers contains HTTP middleware and health checking shared by
// the API server.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("store", handlers.PingCheck(store))
//	checker.AddCheck("cache", handlers.PingCheck(cache))
//
//	status := checker.Check(ctx)          // /health
//	ready := checker.CheckOnly(ctx, "store") // /ready
//
// # Authentication
//
// Authenticator turns "Authorization: Bearer <token>" into an
// identity.Principal stored in the request context:
//
//	auth := handlers.NewAuthenticator(provider, log)
//	mux.Handle("/api/v1/", auth.Middleware(api))
//
//	principal, ok := handlers.PrincipalFrom(r.Context())
//
// Failures are answered with the standard error envelope:
//
//	{"error": {"code": "unauthenticated", "message": "bearer token is required"}}
package handlers
