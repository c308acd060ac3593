// Package devserver implements a small chat backend that speaks the same
// JSON frame protocol as the client.
//
// It is meant for local development and end-to-end tests: users live in
// memory with bcrypt hashed passwords, every channel keeps a bounded history,
// and presence changes are broadcast to authenticated connections. The code
// is split into configuration, the hub, per-connection clients, frame
// dispatch, and the HTTP handlers that upgrade requests.
package devserver
