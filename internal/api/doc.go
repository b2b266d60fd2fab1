// Package api is a small REST client for the streamer host.
//
// The streamer serves its SignalR hub over wss:// and a handful of plain
// HTTP endpoints on the same host. GET /version needs no token and is the
// cheapest way to check that the host is reachable before connecting:
//
//	base, _ := api.VersionURL(cfg.Streamer.URL)
//	c := api.NewClient(base)
//	info, err := c.GetVersion(ctx)
package api
