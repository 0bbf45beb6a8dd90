/*
Package httpserver implements the one-shot HTTPS delivery service: a TLS
listener that accepts connections until exactly one request passes the
admission pipeline, hands that request the configured payload, and stops.

The package has three parts:

 1. TLS context assembly — the server credential is read through the
    credstage pipes, never from a caller-controlled path. When a CA
    certificate is configured it verifies client certificates; with mutual
    TLS required, connections without a client certificate already fail the
    handshake and never reach a handler.

 2. Admission pipeline — six ordered, short-circuiting per-request checks
    (client certificate presence, certificate common name, peer IP, method,
    headers, path). A failed check answers that request with an error status
    and the service keeps waiting; nothing short of full admission ends the
    run early.

 3. Delivery controller — drives one run to a terminal Outcome: Delivered
    when the admitted request got the payload, TimedOut when the wait budget
    elapsed first, Fatal for setup errors or interruption. The listener is
    closed and the credential staging directory removed on every path.

Requests are logged through the shared logging middleware; admission
decisions are logged at debug level.
*/
package httpserver
