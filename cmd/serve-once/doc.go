/*
The serve-once command starts a one-shot HTTPS delivery service.

It reads a YAML configuration document (from standard input by default),
merges it over the built-in defaults, starts a TLS listener, and waits for
the single request that satisfies the configured admission contract. That
request receives the configured payload; every other request is answered
with an error status and the service keeps waiting until the timeout.

Exit status is 0 when the payload was delivered, 1 when the wait timed out
or setup failed. Diagnostics go to standard error; standard output is
reserved for the optional request-body echo.

Usage:

	serve-once [--config FILE] [--timeout SECONDS] [--log-json] [--log-debug] [--log-uid]

Example:

	echo 'payload: "secret"
	mtls: true
	ca_cert: |
	  -----BEGIN CERTIFICATE-----
	  ...' | serve-once --timeout 60
*/
package main
