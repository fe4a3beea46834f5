// Package notify turns inbound notification requests into provider
// messages and delivers them.
//
// A Request is whatever the caller put in the "message" field of a send
// command: a bare string (or any other JSON scalar) is the body, an object
// carries the individual Pushover fields. Normalize fills in instance
// defaults, Deduplicator drops rapid identical resends and Dispatcher owns
// the provider client.
package notify
