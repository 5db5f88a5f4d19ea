// Package http implements the REST API of the coordinator daemon.
//
// Sessions are created with POST /sessions; the page then reports activity,
// visibility and focus signals and can drive its renderer. Surfaced errors
// are read back from GET /sessions/:id/errors. POST /classify and
// POST /tools/run expose the error classifier and the bounded tool runner.
package http
