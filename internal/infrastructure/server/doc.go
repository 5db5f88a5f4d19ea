/*
Package server assembles the coordinator daemon.

It wires configuration into the session manager, the tool runner and the
optional upstream fetcher, mounts the REST and websocket APIs behind the
middleware stack, and serves them with gzip compression and optional
cleartext HTTP/2 (SERVER_H2C).

# Usage

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
*/
package server
