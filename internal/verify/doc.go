// Package verify holds the reply checks used by the optional verification
// stage. Every check implements pipeline.Verifier and inspects the trailing
// assistant message of an item. A rejected or failed check sends the item
// back for another dispatch attempt.
package verify
