// Package taskqueue implements the Redis-backed task fabric that dispatches
// pipeline work across named queues.
//
// A Client submits tasks and polls their status; a Server binds worker pools
// to queues and executes registered handlers with per-queue concurrency,
// rate limits, soft/hard time limits, and late acknowledgment. Tasks are
// JSON records moved between per-queue Redis structures: a pending list, a
// started sorted set scored by visibility deadline (crash redelivery), a
// retried sorted set scored by next attempt, and succeeded/failed sorted
// sets scored by result expiry. A per-task status key carries the current
// state and result for GetStatus and expires with the result retention.
package taskqueue
