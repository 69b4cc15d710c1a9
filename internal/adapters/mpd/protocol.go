package mpd

import (
	"context"
	"errors"
	"fmt"

	gompd "github.com/fhs/gompd/v2/mpd"

	"github.com/holms/mpdstats/internal/core"
)

// Conn is one established link to MPD. Implementations only need to be
// used from a single goroutine.
type Conn interface {
	Status() (gompd.Attrs, error)
	PlaylistInfo(start, end int) ([]gompd.Attrs, error)
	// Idle blocks until subsystems change or ctx is done.
	Idle(ctx context.Context) ([]string, error)
	Close() error
}

// Dialer opens a Conn. A rejected password must wrap core.ErrAuth.
type Dialer func(network, addr, password string) (Conn, error)

// Dial opens a gompd watcher for idle events. Commands run on short-lived
// client connections so an idle watcher never holds a command socket open
// past the server's connection timeout.
func Dial(network, addr, password string) (Conn, error) {
	probe, err := dialClient(network, addr, password)
	if err != nil {
		return nil, err
	}
	_ = probe.Close()

	watcher, err := gompd.NewWatcher(network, addr, password)
	if err != nil {
		return nil, passwordError(fmt.Errorf("watch %s: %w", addr, err))
	}
	return &gompdConn{network: network, addr: addr, password: password, watcher: watcher}, nil
}

func dialClient(network, addr, password string) (*gompd.Client, error) {
	client, err := gompd.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if password == "" {
		return client, nil
	}
	if err := client.Command("password %s", password).OK(); err != nil {
		_ = client.Close()
		return nil, passwordError(fmt.Errorf("password %s: %w", addr, err))
	}
	return client, nil
}

// passwordError marks an ACK reply to the password command as ErrAuth.
// Anything else is a transport failure.
func passwordError(err error) error {
	var ack gompd.Error
	if errors.As(err, &ack) && ack.Code == gompd.ErrorPassword {
		return errors.Join(core.ErrAuth, err)
	}
	return err
}

type gompdConn struct {
	network  string
	addr     string
	password string
	watcher  *gompd.Watcher
}

func (c *gompdConn) Status() (gompd.Attrs, error) {
	var attrs gompd.Attrs
	err := c.withClient(func(client *gompd.Client) error {
		var err error
		attrs, err = client.Status()
		return err
	})
	return attrs, err
}

func (c *gompdConn) PlaylistInfo(start, end int) ([]gompd.Attrs, error) {
	var entries []gompd.Attrs
	err := c.withClient(func(client *gompd.Client) error {
		var err error
		entries, err = client.PlaylistInfo(start, end)
		return err
	})
	return entries, err
}

func (c *gompdConn) withClient(fn func(*gompd.Client) error) error {
	client, err := dialClient(c.network, c.addr, c.password)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// Idle returns the first reported subsystem together with any others
// already queued.
func (c *gompdConn) Idle(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err, ok := <-c.watcher.Error:
		if !ok {
			return nil, errors.New("watcher closed")
		}
		return nil, err
	case name, ok := <-c.watcher.Event:
		if !ok {
			return nil, errors.New("watcher closed")
		}
		return c.drain([]string{name}), nil
	}
}

func (c *gompdConn) drain(events []string) []string {
	seen := map[string]bool{}
	for _, name := range events {
		seen[name] = true
	}
	for {
		select {
		case name, ok := <-c.watcher.Event:
			if !ok {
				return events
			}
			if !seen[name] {
				seen[name] = true
				events = append(events, name)
			}
		default:
			return events
		}
	}
}

func (c *gompdConn) Close() error {
	return c.watcher.Close()
}
