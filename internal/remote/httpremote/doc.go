// Package httpremote speaks the snapshot protocol over HTTP and WebSocket.
//
//	PUT /v1/users/{userID}/snapshot   replace the user's document (JSON snapshot)
//	GET /v1/users/{userID}/snapshot   read the user's document
//	GET /v1/users/{userID}/changes    WebSocket; one JSON remote.Change per accepted upload
//	GET /healthz                      liveness
//
// Client implements remote.Store against that protocol, sending a bearer
// token through golang.org/x/oauth2. Server is a small reference mirror
// backed by remote.Memory.
package httpremote
