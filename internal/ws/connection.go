// Package ws bridges one signed-in client to its live state over a
// websocket: the active conversation window and both sidebar streams.
package ws

import (
	"context"
	"errors"
	"sync"

	"neonchat/internal/conversation"
	"neonchat/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type conversationChannel interface {
	Open(kind conversation.Kind, targetID string) error
	Send(text string) error
	Typing()
	Messages() <-chan []models.Message
	Close()
}

type sidebarStream interface {
	Users() <-chan []models.User
	Rooms() <-chan []models.Room
	Close()
}

type Connection struct {
	ws         wsConnection
	channel    conversationChannel
	sidebar    sidebarStream
	fromClient chan ClientMessage
	errorCh    chan error

	// active conversation, echoed back in messages frames so the
	// client can match a window to its view.
	kind   string
	target string
}

func NewConnection(ws wsConnection, channel conversationChannel, sidebar sidebarStream) *Connection {
	return &Connection{
		ws:         ws,
		channel:    channel,
		sidebar:    sidebar,
		fromClient: make(chan ClientMessage),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		c.channel.Close()
		c.sidebar.Close()
		close(c.fromClient)
		close(c.errorCh)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
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

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.fromClient:
			if err := c.processClientMessage(msg); err != nil {
				return err
			}
		case window := <-c.channel.Messages():
			frame := ServerMessage{
				Type:     ServerMessageTypeMessages,
				Kind:     c.kind,
				Target:   c.target,
				Messages: window,
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				return err
			}
		case users := <-c.sidebar.Users():
			if err := c.ws.WriteJSON(ServerMessage{Type: ServerMessageTypeUsers, Users: users}); err != nil {
				return err
			}
		case rooms := <-c.sidebar.Rooms():
			if err := c.ws.WriteJSON(ServerMessage{Type: ServerMessageTypeRooms, Rooms: rooms}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientMessage(msg ClientMessage) error {
	switch msg.Type {
	case ClientMessageTypeSelect:
		if err := c.channel.Open(conversation.Kind(msg.Kind), msg.Target); err != nil {
			return c.writeError(err)
		}
		c.kind = msg.Kind
		c.target = msg.Target
	case ClientMessageTypeSend:
		if err := c.channel.Send(msg.Text); err != nil {
			return c.writeError(err)
		}
	case ClientMessageTypeTyping:
		c.channel.Typing()
	}

	return nil
}

// writeError reports a rejected command to the client. The connection
// stays up; a bad selection or a refused send is not a transport fault.
func (c *Connection) writeError(err error) error {
	return c.ws.WriteJSON(ServerMessage{Type: ServerMessageTypeError, Error: err.Error()})
}
