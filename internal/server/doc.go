// Package server publishes discovered renderers over HTTP.
//
// The listener is bound on a port issued by portalloc, so an explicit
// port recently handed out elsewhere in the process is refused rather than
// double-bound. Routes:
//
//	GET  /devices  JSON array of delivered devices
//	GET  /events   WebSocket; one {"event":"found","device":{...}} text
//	               message per delivery, starting with the current set
//	POST /search   ask the discovery session for another round
//	GET  /metrics  Prometheus exposition
//
// TLS is enabled when Config carries a certificate and key.
//
// Example:
//
//	srv, err := server.New(server.Config{Port: 8089}, nil, session)
//	if err != nil {
//	    return err
//	}
//	return srv.Serve(ctx)
package server
