// Package notify implements the fleet notification lifecycle: composing
// ping messages and embeds, posting creation/reminder/formup notices with
// reply threading, editing or cancelling previously sent messages, and
// maintaining the per-channel rolling "upcoming events" summary.
package notify
