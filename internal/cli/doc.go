// Package cli is a line-oriented terminal front end for the chat client.
//
// A REPL reads commands from stdin and turns them into client commands,
// while a renderer goroutine prints every event the client emits. Lines
// that are not commands are sent as chat messages to the active server.
package cli
