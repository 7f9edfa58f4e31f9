// Package commsutil provides COMMS (NATS) connection helpers, the JSON
// payload codec and subject builders.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// State is a COMMS connection state reported to ConnectOptions.OnStateChange.
type State string

const (
	StateDisconnected State = "disconnected"
	StateReconnected  State = "reconnected"
	StateClosed       State = "closed"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultReconnectWait = 2 * time.Second
	defaultMaxReconnects = 60
)

// ConnectOptions controls the COMMS connection. Zero durations and a zero
// MaxReconnects use the defaults; a negative MaxReconnects retries forever.
type ConnectOptions struct {
	// Name is reported to the server as the client name.
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
	// OnStateChange is called after the connection is lost, regained or closed.
	OnStateChange func(State)
}

// DefaultConnectOptions returns the options used when nothing is configured.
func DefaultConnectOptions(name string) ConnectOptions {
	return ConnectOptions{
		Name:          name,
		Timeout:       defaultTimeout,
		ReconnectWait: defaultReconnectWait,
		MaxReconnects: defaultMaxReconnects,
	}
}

func (o ConnectOptions) natsOptions() []comms.Option {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	wait := o.ReconnectWait
	if wait <= 0 {
		wait = defaultReconnectWait
	}
	maxReconnects := o.MaxReconnects
	switch {
	case maxReconnects == 0:
		maxReconnects = defaultMaxReconnects
	case maxReconnects < 0:
		maxReconnects = -1
	}

	notify := func(s State) {
		if o.OnStateChange != nil {
			o.OnStateChange(s)
		}
	}

	return []comms.Option{
		comms.Name(o.Name),
		comms.Timeout(timeout),
		comms.ReconnectWait(wait),
		comms.MaxReconnects(maxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
			notify(StateDisconnected)
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
			notify(StateReconnected)
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
			notify(StateClosed)
		}),
	}
}

// Connect creates a COMMS connection to url.
func Connect(url string, opts ConnectOptions) (*comms.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, url, opts.Name))

	nc, err := comms.Connect(url, opts.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
