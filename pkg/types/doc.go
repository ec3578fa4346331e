/*
Package types defines the core data model shared by every control plane
component: Node, Match, ClusterMatchId, Module and ScalingRecommendation.

Per §3 of the specification, Node, Match and Module entities live exclusively
in the Shared State Store (pkg/statestore); this package only defines their
shape and the pure helpers (status derivation, id parsing) that don't require
store access. Every type here is JSON-serializable so it can cross the
Shared State Store boundary and the admin HTTP surface unchanged.
*/
package types
