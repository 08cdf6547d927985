// Package hostport is the serial link between the firmware core and the
// host: incoming newline-terminated command lines are surfaced on a channel
// and response bytes are written back to the port.
package hostport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the CDC line coding the instruments enumerate
	// with.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the lines channel buffer.
	DefaultBufferSize = 16
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Link is an open serial connection to the host.
type Link struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	lines     chan string
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a Link for the given port. Zero values select the defaults.
func New(port string, baudRate, bufSize int) *Link {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Link{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		lines:    make(chan string, bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect opens the serial port and starts reading command lines.
func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(l.port, &serial.Mode{BaudRate: l.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", l.port, err)
	}

	l.conn = port
	l.connected = true

	go l.readLines()

	return nil
}

// Close closes the connection and stops reading.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil
	}

	l.cancel()

	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		l.conn = nil
	}

	l.connected = false
	close(l.lines)

	return nil
}

// Lines returns the channel of received command lines. Each line keeps its
// trailing newline stripped.
func (l *Link) Lines() <-chan string {
	return l.lines
}

// Write sends response bytes to the host.
func (l *Link) Write(p []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return fmt.Errorf("not connected")
	}
	if _, err := l.conn.Write(p); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// IsConnected returns whether the link is currently open.
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// readLines reads newline-terminated commands from the port into the lines
// channel.
func (l *Link) readLines() {
	scanner := bufio.NewScanner(l.conn)
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && err != io.EOF {
					log.Printf("Error reading from serial port: %v", err)
				}
				return
			}

			select {
			case l.lines <- scanner.Text():
			case <-l.ctx.Done():
				return
			default:
				// Channel full, drop the line; the host will retry on a
				// missing ack.
				log.Printf("Line buffer full, dropping command")
			}
		}
	}
}
