package adapter

import (
	"fmt"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// Transport is the serial link a vendor adapter stack runs over. Framing and
// escaping are vendor concerns; the transport only delivers raw chunks to the
// OnData handler and serializes writes.
type Transport struct {
	port     serial.Port
	portName string
	logger   *slog.Logger

	onData func([]byte)

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenTransport opens the serial port with 8N1 framing at the given baud rate.
func OpenTransport(portName string, baudRate int, logger *slog.Logger) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("adapter: open %s: %w", portName, err)
	}

	// USB CDC ACM adapters need DTR/RTS asserted before they talk.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)

	return &Transport{
		port:     port,
		portName: portName,
		logger:   logger.With("component", "uart"),
		done:     make(chan struct{}),
	}, nil
}

// OnData sets the receive handler. Must be called before Start.
func (t *Transport) OnData(handler func([]byte)) {
	t.onData = handler
}

// Start launches the background read loop.
func (t *Transport) Start() {
	t.wg.Add(1)
	go t.readLoop()
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Error("read failed", "port", t.portName, "error", err)
			}
			return
		}
		if n > 0 && t.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.onData(chunk)
		}
	}
}

// Write sends raw bytes to the port. Safe for concurrent use.
func (t *Transport) Write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.port.Write(data); err != nil {
		return fmt.Errorf("adapter: write %s: %w", t.portName, err)
	}
	return nil
}

// Close stops the read loop and closes the port.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.port.Close()
		t.wg.Wait()
	})
}
