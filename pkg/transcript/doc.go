// Package transcript holds the ordered, append-only record of a chat session.
//
// Entries are tagged with a [Speaker] (user or bot) and are never removed or
// reordered once appended. The transcript lives in memory only.
package transcript
