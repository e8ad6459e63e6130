// Package ipc is the signal server other editors use to report their mode.
//
// Signals are single lines. The signal name and its arguments are separated
// with a null character, and every signal gets exactly one response line:
// OK, OK<NUL>payload or ERR<NUL>message.
package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hismailbulut/vimim/pkg/logger"
)

const (
	SignalCheck   = "CHECK"
	SignalClose   = "CLOSE"
	SignalMode    = "MODE"
	SignalKey     = "KEY"
	SignalStatus  = "STATUS"
	SignalHistory = "HISTORY"
	SignalReload  = "RELOAD"

	responseOK    = "OK"
	responseError = "ERR"

	separator = "\x00"
)

// Dispatcher handles one signal and returns the response payload.
type Dispatcher func(signal string, args []string) (string, error)

// RemoteError is an error reported by the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "server: " + e.Message
}

func encode(signal string, args ...string) string {
	for _, arg := range args {
		signal += separator + arg
	}
	return signal + "\n"
}

func decode(line string) (string, []string) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, separator)
	return parts[0], parts[1:]
}

type Server struct {
	listener net.Listener
	dispatch Dispatcher
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closed   bool
}

// Listen creates a server and processes incoming signals until Close.
func Listen(address string, dispatch Dispatcher) (*Server, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	server := &Server{
		listener: l,
		dispatch: dispatch,
		conns:    make(map[net.Conn]struct{}),
	}
	server.wg.Add(1)
	go server.serve()
	logger.Log(logger.TRACE, "Signal server listening on", l.Addr())
	return server, nil
}

func (server *Server) Addr() net.Addr {
	return server.listener.Addr()
}

func (server *Server) serve() {
	defer server.wg.Done()
	for {
		c, err := server.listener.Accept()
		if err != nil {
			logger.Log(logger.DEBUG, "Server closed.")
			return
		}
		if !server.track(c) {
			c.Close()
			return
		}
		logger.Log(logger.DEBUG, "New client connected:", c.RemoteAddr())
		server.wg.Add(1)
		go server.handle(c)
	}
}

func (server *Server) track(c net.Conn) bool {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.closed {
		return false
	}
	server.conns[c] = struct{}{}
	return true
}

func (server *Server) handle(c net.Conn) {
	defer server.wg.Done()
	defer func() {
		server.mu.Lock()
		delete(server.conns, c)
		server.mu.Unlock()
		c.Close()
	}()
	reader := bufio.NewReader(c)
	for {
		data, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Log(logger.DEBUG, "Failed to read client data:", err)
			}
			return
		}
		signal, args := decode(data)
		var resp string
		closing := false
		switch signal {
		case "", SignalClose:
			resp = encode(responseOK)
			closing = true
		case SignalCheck:
			resp = encode(responseOK)
		default:
			payload, err := server.dispatch(signal, args)
			if err != nil {
				resp = encode(responseError, strings.ReplaceAll(err.Error(), "\n", " "))
			} else if payload != "" {
				resp = encode(responseOK, payload)
			} else {
				resp = encode(responseOK)
			}
		}
		if _, err := c.Write([]byte(resp)); err != nil {
			logger.Log(logger.DEBUG, "Failed to send response to client:", err)
			return
		}
		if closing {
			logger.Log(logger.DEBUG, "Client disconnected.")
			return
		}
	}
}

// Close stops accepting clients, drops the connected ones and waits for
// their handlers.
func (server *Server) Close() error {
	server.mu.Lock()
	server.closed = true
	for c := range server.conns {
		c.Close()
	}
	server.mu.Unlock()
	err := server.listener.Close()
	server.wg.Wait()
	return err
}

type Client struct {
	connection net.Conn
	reader     *bufio.Reader
	timeout    time.Duration
}

func Dial(address string, timeout time.Duration) (*Client, error) {
	c, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		connection: c,
		reader:     bufio.NewReader(c),
		timeout:    timeout,
	}, nil
}

// Send sends a signal and returns the payload of the response.
func (client *Client) Send(signal string, args ...string) (string, error) {
	for _, arg := range args {
		if strings.ContainsAny(arg, "\n"+separator) {
			return "", fmt.Errorf("argument %q contains a reserved character", arg)
		}
	}
	if client.timeout > 0 {
		client.connection.SetDeadline(time.Now().Add(client.timeout))
	}
	if _, err := client.connection.Write([]byte(encode(signal, args...))); err != nil {
		return "", fmt.Errorf("send %s: %w", signal, err)
	}
	line, err := client.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	status, fields := decode(line)
	payload := strings.Join(fields, separator)
	switch status {
	case responseOK:
		return payload, nil
	case responseError:
		return "", &RemoteError{Message: payload}
	}
	return "", fmt.Errorf("unexpected response %q", strings.TrimSpace(line))
}

func (client *Client) Close() error {
	client.Send(SignalClose)
	return client.connection.Close()
}
