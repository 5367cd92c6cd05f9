package instrument

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-instrument/internal/simulator"
	"github.com/arloliu/go-instrument/transport"
)

const (
	timeoutWait = 2 * time.Second
	tick        = 10 * time.Millisecond
)

func startSim(t *testing.T, opts ...simulator.Option) *simulator.Instrument {
	t.Helper()

	sim := simulator.New(opts...)
	require.NoError(t, sim.Start())
	t.Cleanup(sim.Close)

	return sim
}

func scriptPSU(sim *simulator.Instrument) {
	sim.Set("*IDN", "ACME,PSU-3000,SN123,2.1")
	sim.Set("MODE", "1")
	sim.SetIndexed("VOLT", 1, "5")
	sim.SetIndexed("VOLT", 2, "12.5")
	sim.Set("FAN:SPEED", "1200")
}

func fastTransport() Option {
	return WithTransportOptions(
		transport.WithTimeout(200*time.Millisecond),
		transport.WithLoginSettleDelay(5*time.Millisecond),
	)
}

func connectedPSU(t *testing.T, sim *simulator.Instrument, opts ...Option) *Instrument {
	t.Helper()

	opts = append([]Option{WithIDString("PSU-3000"), fastTransport()}, opts...)
	psu, err := New("psu", psuClass, opts...)
	require.NoError(t, err)
	require.NoError(t, psu.Connect(t.Context(), transport.KindSocket, sim.Host(), strconv.Itoa(sim.Port())))
	t.Cleanup(func() { _ = psu.Disconnect() })

	return psu
}

func TestInstrument_ConnectPropagatesTransport(t *testing.T) {
	sim := startSim(t)
	scriptPSU(sim)

	psu, err := New("psu", psuClass, fastTransport())
	require.NoError(t, err)
	fan := NewComponent("fan", fanClass, psu.Component)
	assert.False(t, psu.IsConnected())
	assert.Nil(t, fan.Transport())

	require.NoError(t, psu.Connect(t.Context(), "socket", sim.Host(), strconv.Itoa(sim.Port())))
	defer psu.Disconnect()

	require.True(t, psu.IsConnected())
	first := psu.Transport()
	assert.Same(t, first, fan.Transport())

	speed, err := cmdFanSpeed.Read(fan)
	require.NoError(t, err)
	assert.Equal(t, 1200, speed)

	// connecting again replaces the link everywhere and tears the old one down
	require.NoError(t, psu.Connect(t.Context(), "socket", sim.Host(), strconv.Itoa(sim.Port())))
	assert.NotSame(t, first, psu.Transport())
	assert.Same(t, psu.Transport(), fan.Transport())
	assert.False(t, first.IsConnected())
}

func TestInstrument_ConnectWithParameterStringLogin(t *testing.T) {
	sim := startSim(t, simulator.WithLogin(simulator.DefaultLogin("admin", "secret")))
	scriptPSU(sim)

	psu, err := New("psu", psuClass, WithIDString("PSU-3000"), fastTransport())
	require.NoError(t, err)

	err = psu.ConnectWithParameterString(t.Context(), "tcpip:127.0.0.1:admin:secret:"+strconv.Itoa(sim.Port()))
	require.NoError(t, err)
	defer psu.Disconnect()

	tcp, ok := psu.Transport().(*transport.TCPTransport)
	require.True(t, ok)
	assert.True(t, tcp.PollMode())

	id, err := psu.CheckID()
	require.NoError(t, err)
	assert.Equal(t, "PSU-3000", id.Model)
}

func TestInstrument_ConnectFailures(t *testing.T) {
	sim := startSim(t, simulator.WithLogin(simulator.DefaultLogin("admin", "secret")))

	psu, err := New("psu", psuClass, fastTransport(),
		WithTransportKinds(transport.TCPKind(), transport.SocketKind()))
	require.NoError(t, err)
	require.Len(t, psu.Kinds(), 2)

	err = psu.Connect(t.Context(), "serial", "/dev/ttyUSB0")
	require.ErrorIs(t, err, transport.ErrUnknownKind)

	err = psu.ConnectWithParameterString(t.Context(), "socket:127.0.0.1")
	require.ErrorIs(t, err, transport.ErrInvalidParameters)

	err = psu.Connect(t.Context(), "tcpip", "127.0.0.1", "admin", "wrong", strconv.Itoa(sim.Port()))
	require.ErrorIs(t, err, transport.ErrLoginFailure)
	assert.False(t, psu.IsConnected())

	assert.Empty(t, sim.Received())
}

func TestInstrument_CheckID(t *testing.T) {
	sim := startSim(t)
	scriptPSU(sim)
	psu := connectedPSU(t, sim)

	id, err := psu.CheckID()
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "ACME", id.Manufacturer)
	assert.Equal(t, "PSU-3000", id.Model)
	assert.Equal(t, "SN123", id.Serial)
	assert.Equal(t, "2.1", id.Firmware)

	cached, ok := psu.Identity()
	require.True(t, ok)
	assert.Same(t, id, cached)

	require.NoError(t, psu.Disconnect())
	_, ok = psu.Identity()
	assert.False(t, ok)
}

func TestInstrument_CheckIDWrongFieldCount(t *testing.T) {
	sim := startSim(t)
	sim.Set("*IDN", "ACME,PSU-3000")
	psu := connectedPSU(t, sim)

	id, err := psu.CheckID()
	require.NoError(t, err)
	assert.Nil(t, id)

	_, ok := psu.Identity()
	assert.False(t, ok)
}

func TestInstrument_CheckIDWrongInstrument(t *testing.T) {
	sim := startSim(t)
	sim.Set("*IDN", "ACME,DMM-7,SN9,1.0")
	psu := connectedPSU(t, sim)

	id, err := psu.CheckID()
	assert.Nil(t, id)
	require.ErrorIs(t, err, ErrIdentity)

	var ie *IdentityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "PSU-3000", ie.Expected)
	assert.Equal(t, "ACME,DMM-7,SN9,1.0", ie.Reply)
}

func TestInstrument_CheckIDOptions(t *testing.T) {
	sim := startSim(t)
	sim.Set("ID", "LAB|X1")
	sim.Set("VER", "ACME,X1,FW3")
	psu := connectedPSU(t, sim, WithIDQuery("VER?"), WithIDFieldCount(3), WithIDString("X1"))

	id, err := psu.CheckID()
	require.NoError(t, err)
	assert.Equal(t, "X1", id.Model)
	assert.Equal(t, "FW3", id.Serial)
	assert.Empty(t, id.Firmware)
	assert.Equal(t, []string{"ACME", "X1", "FW3"}, id.Fields)
}

func TestInstrument_CheckIDNotConnected(t *testing.T) {
	psu, err := New("psu", psuClass)
	require.NoError(t, err)

	_, err = psu.CheckID()
	require.ErrorIs(t, err, transport.ErrCommunication)
	require.ErrorIs(t, psu.Reconnect(t.Context()), transport.ErrNotConnected)
	require.NoError(t, psu.Disconnect())
}

func TestInstrument_TerminatorAndReconnect(t *testing.T) {
	sim := startSim(t, simulator.WithTerminator("\r\n"))
	scriptPSU(sim)
	psu := connectedPSU(t, sim, WithTerminator("\r\n"))

	assert.Equal(t, "\r\n", psu.Transport().Terminator())
	_, err := psu.CheckID()
	require.NoError(t, err)

	sim.DropConnections()
	require.NoError(t, psu.Reconnect(t.Context()))
	_, ok := psu.Identity()
	assert.False(t, ok)

	id, err := psu.CheckID()
	require.NoError(t, err)
	assert.Equal(t, "SN123", id.Serial)
	assert.Equal(t, uint64(1), psu.Transport().Metrics().ReconnectCount.Load())
}

func TestNew_InvalidOptions(t *testing.T) {
	for _, opt := range []Option{WithTransportKinds(), WithIDQuery(" "), WithIDFieldCount(0), WithLogger(nil)} {
		_, err := New("x", nil, opt)
		require.Error(t, err)
	}
}
