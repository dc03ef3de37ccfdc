// Package httpapi mounts the branchauth engine on a gorilla/mux router.
//
// Routes:
//
//	POST   /auth/login               username + password -> token pair
//	POST   /auth/refresh             access + refresh token -> rotated pair
//	POST   /auth/logout              ends the caller's session
//	GET    /auth/me                  caller projection from the access token
//	GET    /auth/sessions            caller's active sessions
//	GET    /auth/sessions/count      number of active sessions
//	DELETE /auth/sessions/others     revoke every session but the caller's
//	DELETE /auth/sessions/{id}       revoke one session
//	DELETE /auth/sessions            revoke every session
//
// Everything but login and refresh runs behind middleware.SessionGuard.
// Every authentication failure is answered with 401 {"error":"unauthorized"}
// regardless of cause.
package httpapi
