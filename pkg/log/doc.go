/*
Package log provides structured logging for the control plane using zerolog.

A single package-level Logger is initialized once via Init and shared by every
component; context loggers (WithComponent, WithNodeID, WithMatchID, WithModule)
attach the fields that matter for tracing a request through the scheduler,
router, distributor and broker without threading a logger value everywhere.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	routerLog := log.WithComponent("router").With().Str("cluster_match_id", id).Logger()
	routerLog.Info().Msg("match created")

JSONOutput selects structured JSON (production) vs. a console writer
(development); the level filters below zerolog.InfoLevel by default.
*/
package log
