// Package workitem defines the chat request carried through the batch
// pipeline. Items are copy-on-write: a successful completion produces a new
// Item with the assistant reply appended.
package workitem
