package ws

import (
	"context"
	"errors"
	"sync"

	"ogonyok/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Register(userID string) (connID string, ch chan models.ServerEvent)
	Unregister(userID, connID string)
	Dispatch(userID, connID string, event models.ClientEvent)
}

type Connection struct {
	ws         wsConnection
	hub        messageHub
	userID     string
	connID     string
	fromClient chan models.ClientEvent
	fromServer chan models.ServerEvent
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	userID string,
) *Connection {
	connID, fromServer := hub.Register(userID)
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		connID:     connID,
		fromClient: make(chan models.ClientEvent),
		fromServer: fromServer,
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Unregister(c.userID, c.connID)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var event models.ClientEvent
		if err := c.ws.ReadJSON(&event); err != nil {
			return err
		}
		select {
		case c.fromClient <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// mainLoop serializes everything for one connection: client events are
// dispatched in arrival order, so a single sender's messages are persisted
// and broadcast in the order they were sent.
func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case event := <-c.fromClient:
			c.hub.Dispatch(c.userID, c.connID, event)
		case event, ok := <-c.fromServer:
			if !ok {
				return nil
			}
			if err := c.ws.WriteJSON(event); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
