// Package api implements the HTTP and websocket surface of the smarthome bridge.
//
// This package provides:
//   - A websocket endpoint whose connections join the bridge's sink registry
//     and receive every telemetry envelope
//   - POST /api/fan/{action} for the "on" and "off" fan commands
//   - Health, JSON metrics and Prometheus scrape endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, rate limiting)
//
// # Websocket Frames
//
// Server to client frames are bridge envelopes:
//
//	{"topic":"home/livingroom/environment","payload":{"temp":22.5,"humidity":48.1}}
//
// A client may send {"type":"command","action":"on"} to issue a fan
// command. Any other frame is ignored and only keeps the connection open.
//
// # Graceful Degradation
//
// Without a control endpoint the fan route answers 503 and command frames
// are ignored; telemetry push keeps working.
package api
