// Package dashboard is the mounted dashboard view: it owns the periodic
// health and metrics pollers for the lifetime of a mount and holds the
// latest state every surface (JSON API, WebSocket stream) reads from.
//
// State is held in atomic pointers and replaced wholesale on each update,
// so readers never see a partially written value. Mount starts the pollers
// under an errgroup; Close cancels them, waits for every in-flight request
// to return and discards any result that arrives afterwards.
package dashboard
