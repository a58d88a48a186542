// Package bus runs scoring requests received over NATS.
//
// A [Worker] queue-subscribes to a request subject, scores the video named in
// each message through the same feedback service the HTTP API uses, replies
// with the report (or an error body) and publishes a completion event.
package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Connect dials url with the service's connection name.
func Connect(url string, timeout time.Duration) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("bus: no NATS url configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	nc, err := nats.Connect(url,
		nats.Name("speechscore"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to nats: %w", err)
	}
	return nc, nil
}

// Embedded is an in-process NATS server for single-node deployments.
type Embedded struct {
	ns *server.Server
}

// StartEmbedded starts a NATS server on host:port. Port -1 picks a free
// port.
func StartEmbedded(host string, port int) (*Embedded, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("bus: create embedded nats server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("bus: embedded nats server failed to start within 5 seconds")
	}
	slog.Info("embedded NATS server started", "url", ns.ClientURL())
	return &Embedded{ns: ns}, nil
}

// ClientURL returns the URL clients connect to.
func (e *Embedded) ClientURL() string { return e.ns.ClientURL() }

// Shutdown stops the server and waits for it to exit.
func (e *Embedded) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
