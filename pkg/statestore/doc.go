/*
Package statestore implements the Shared State Store contract from §4.A: a
process-external, HA-assumed key/value facility with TTL expiry and atomic
compare-and-set, consumed by every registry (nodes, matches, modules)
instead of a component keeping its own durable state.

Three backends satisfy the same Store interface: MemoryStore for tests,
BoltStore for single-process deployments, and RedisStore for production.
Callers never branch on which backend is in use.
*/
package statestore
