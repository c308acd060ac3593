// Package protocol defines the JSON frames exchanged with a chat backend.
//
// Every frame is a JSON object carrying a "type" discriminator. Decode peeks
// the discriminator and returns one variant of the sealed Frame union; a
// frame whose type is not known decodes to *Unknown so callers can log it
// without treating it as malformed.
package protocol
