// Package api exposes the HTTP control surface for the orchestrator.
//
// The server is read-mostly: device inventory, live handle state, session
// logs and the event journal are served as JSON under /api/v1, while
// camera endpoints stream binary JPEG data. The single mutating endpoints
// are POST /api/v1/devices/refresh, which rebuilds the registry, and
// POST /api/v1/command, which forwards a validated command to a serial
// session.
//
// Handlers never touch hardware directly. They talk to the registry,
// supervisor, camera source and event journal through the Deps struct,
// so the whole surface can be exercised in tests with fakes.
package api
