// Package storage provides the persistence layer used by the bot.
//
// It covers:
//   - Fleet, category and ping format records
//   - Fleet message bookkeeping (reserve/finalize/release, see store.go)
//   - Per-channel fleet list state (summary message + activity timestamps)
package storage
