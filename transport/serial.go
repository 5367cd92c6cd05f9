package transport

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// KindSerial is the kind name of serial transports.
const KindSerial = "serial"

// serialPort is the subset of serial.Port used by SerialTransport.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	SetRTS(rts bool) error
	SetDTR(dtr bool) error
	Close() error
}

type portOpener func(name string, mode *serial.Mode) (serialPort, error)

func openSerialPort(name string, mode *serial.Mode) (serialPort, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// SerialTransport is a Transport over a serial port.
//
// Commands get the terminator appended if absent. Replies are read byte by byte
// until the terminator; a zero-length read means the read timeout elapsed.
type SerialTransport struct {
	base

	portName string
	openPort portOpener
	port     serialPort
}

var _ Transport = (*SerialTransport)(nil)

// NewSerial creates a disconnected serial transport for portName.
// The default terminator is a carriage return.
func NewSerial(portName string, opts ...Option) (*SerialTransport, error) {
	if portName == "" {
		return nil, fmt.Errorf("%w: empty serial port name", ErrInvalidParameters)
	}

	cfg, err := newConfig(DefaultSerialTerm, opts)
	if err != nil {
		return nil, err
	}

	s := &SerialTransport{portName: portName, openPort: openSerialPort}
	s.init(KindSerial, s, cfg)

	return s, nil
}

// Address returns the serial port name.
func (s *SerialTransport) Address() string { return s.portName }

// ClearBuffer drains stale bytes left on the line, e.g. after an abnormal disconnect.
//
// The timeout is temporarily shortened and blank queries are issued until one fails.
// It returns the number of stale replies that were discarded.
func (s *SerialTransport) ClearBuffer() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected.Load() {
		return 0, commError("clear buffer", ErrNotConnected)
	}

	return s.clearBufferLocked()
}

func (s *SerialTransport) clearBufferLocked() (int, error) {
	if err := s.port.ResetInputBuffer(); err != nil {
		s.logger.Debug("reset input buffer failed", "error", err)
	}

	orig := s.Timeout()
	if err := s.port.SetReadTimeout(s.cfg.clearTimeout); err != nil {
		return 0, commError("clear buffer", err)
	}
	defer func() {
		_ = s.port.SetReadTimeout(orig)
	}()

	term := []byte(s.terminator)
	drained := 0
	for drained < s.cfg.clearAttempts {
		if err := s.write(term); err != nil {
			break
		}
		if _, err := s.readLine(term); err != nil {
			break
		}
		drained++
	}

	if drained > 0 {
		s.logger.Info("cleared stale replies from serial buffer", "count", drained)
	}

	return drained, nil
}

func (s *SerialTransport) open(_ context.Context) error {
	mode := &serial.Mode{
		BaudRate: s.cfg.baudRate,
		DataBits: s.cfg.dataBits,
		Parity:   toSerialParity(s.cfg.parity),
		StopBits: serial.OneStopBit,
	}

	port, err := s.openPort(s.portName, mode)
	if err != nil {
		return commError("open "+s.portName, err)
	}

	if err := port.SetReadTimeout(s.Timeout()); err != nil {
		_ = port.Close()
		return commError("set timeout", err)
	}

	switch s.cfg.flow {
	case FlowRTSCTS:
		err = port.SetRTS(true)
	case FlowDSRDTR:
		err = port.SetDTR(true)
	}
	if err != nil {
		_ = port.Close()
		return commError("flow control", err)
	}

	s.port = port
	s.logger.Info("serial port opened", "port", s.portName, "baud", s.cfg.baudRate, "flow", s.cfg.flow)

	if s.cfg.clearBuffer {
		if _, err := s.clearBufferLocked(); err != nil {
			s.logger.Warn("failed to clear serial buffer", "error", err)
		}
	}

	return nil
}

func (s *SerialTransport) close() error {
	if s.port == nil {
		return nil
	}

	err := s.port.Close()
	s.port = nil

	return err
}

func (s *SerialTransport) write(p []byte) error {
	for written := 0; written < len(p); {
		n, err := s.port.Write(p[written:])
		written += n
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *SerialTransport) readLine(term []byte) ([]byte, error) {
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)

	for {
		n, err := s.port.Read(one)
		if err != nil {
			return buf, err
		}
		if n == 0 {
			return buf, ErrTimeout
		}

		buf = append(buf, one[0])
		if bytes.HasSuffix(buf, term) {
			return buf, nil
		}
	}
}

func (s *SerialTransport) readN(n int) ([]byte, error) {
	buf := make([]byte, n)

	for read := 0; read < n; {
		m, err := s.port.Read(buf[read:])
		if err != nil {
			return buf[:read], err
		}
		if m == 0 {
			return buf[:read], ErrTimeout
		}
		read += m
	}

	return buf, nil
}

func (s *SerialTransport) applyTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

func toSerialParity(p Parity) serial.Parity {
	switch p {
	case ParityOdd:
		return serial.OddParity
	case ParityEven:
		return serial.EvenParity
	case ParityMark:
		return serial.MarkParity
	case ParitySpace:
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}
