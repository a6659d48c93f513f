// Package auth identifies callers of the wallet gateway.
//
// # Tokens
//
// Every caller presents an HS256 JWT in the "authorization" metadata as
// "Bearer <token>". The "sub" claim is the app id and the "role" claim is
// one of:
//
//   - app: may invoke wallet commands and watch its own interactions.
//     The app id used for every authorization decision is the token's
//     subject, never a value supplied in the request body.
//   - ui: the approval UI. May list and answer authorization requests and
//     watch interactions and diagnostics of every app.
//
// Tokens are minted with the "token" subcommand of the gateway binary.
//
// # gRPC Interceptors
//
// UnaryInterceptor and StreamInterceptor verify the token and attach the
// resulting Identity to the request context. Handlers call Require to
// enforce the role a method needs.
package auth
