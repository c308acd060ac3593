// Package transport provides the duplex, message-framed connection a chat
// session runs on.
//
// A Socket reports its lifecycle to a single Handler: exactly one of
// EventOpen or EventError for the connection attempt, then any number of
// EventMessage, then one EventClose. Events of one socket are delivered in
// order from one goroutine. The WebSocket implementation lives in
// websocket.go; its read and write pumps keep the connection alive with
// pings and deadlines.
package transport
