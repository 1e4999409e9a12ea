// Package ws streams dashboard state to browser clients over WebSocket.
//
// New(source, interval, origins) creates a Hub. Hub.Run(ctx) broadcasts
// the current state on every tick until ctx is cancelled, then closes all
// connections. Hub.ServeHTTP upgrades a request, sends the state
// immediately and keeps the client subscribed to broadcasts.
//
// Message format sent to clients:
//
//	{
//	  "event": "state",
//	  "data":  { /* same schema as GET /api/v1/state */ }
//	}
//
// The server mounts the hub at /ws/stream.
package ws
