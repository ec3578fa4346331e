/*
Package scheduler implements on-demand node selection for match placement
(§4.E). Unlike the teacher's periodic reconciliation loop, the scheduler here
has no background goroutine and no internal state: SelectNode is called
synchronously by the match router at createMatch time and answers from the
node registry and match registry's current view.

Candidates are HEALTHY nodes with enough spare capacity to take the request.
A caller-supplied preferred node wins outright if it qualifies; otherwise the
node with the lowest saturation (active matches / capacity) is chosen, ties
broken lexicographically by node id for determinism.
*/
package scheduler
