// Package event defines the event envelope and the closed set of event types
// of the content repository.
//
// Events are the only mutation primitive. The registry rejects unknown types
// and malformed payloads before the store assigns sequence and integrity
// fields, and every payload names the stream it belongs to so the envelope
// and payload can never disagree.
package event
