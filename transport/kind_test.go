package transport

import (
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allKinds() []Kind {
	return []Kind{SerialKind(), TCPKind(), SocketKind()}
}

func TestParseParameterString_Serial(t *testing.T) {
	kind, params, err := ParseParameterString("serial:/dev/ttyUSB0:115200:rtscts:even", allKinds())
	require.NoError(t, err)

	assert.Equal(t, KindSerial, kind.Name)
	assert.Equal(t, "/dev/ttyUSB0", params.String("port"))
	assert.Equal(t, 115200, params.Int("baudrate"))
	assert.Equal(t, FlowRTSCTS, params.String("flow"))
	assert.Equal(t, ParityEven, params["parity"])
}

func TestParseParameterString_Defaults(t *testing.T) {
	_, params, err := ParseParameterString("SERIAL:COM3", allKinds())
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, params.Int("baudrate"))
	assert.Equal(t, FlowNone, params.String("flow"))
	assert.Equal(t, ParityNone, params["parity"])

	_, params, err = ParseParameterString("tcpip:10.0.0.5", allKinds())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", params.String("ip"))
	assert.Empty(t, params.String("user"))
	assert.Empty(t, params.String("password"))
	assert.Equal(t, DefaultTCPPort, params.Int("port"))

	// empty optional tokens take defaults too
	_, params, err = ParseParameterString("tcpip:10.0.0.5:::2323", allKinds())
	require.NoError(t, err)
	assert.Equal(t, 2323, params.Int("port"))
}

func TestParseParameterString_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "  ", ErrInvalidParameters},
		{"unknown kind", "gpib:1", ErrUnknownKind},
		{"missing required", "socket:127.0.0.1", ErrInvalidParameters},
		{"too many", "socket:127.0.0.1:5025:extra", ErrInvalidParameters},
		{"bad int", "socket:127.0.0.1:http", ErrInvalidParameters},
		{"bad flow", "serial:COM1:9600:xonxoff", ErrInvalidParameters},
		{"bad baud", "serial:COM1:fast", ErrInvalidParameters},
		{"bad parity", "serial:COM1:9600:none:sometimes", ErrInvalidParameters},
		{"empty required", "serial:", ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseParameterString(tt.in, allKinds())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSchema_Required(t *testing.T) {
	assert.Equal(t, 1, SerialKind().Schema.Required())
	assert.Equal(t, 1, TCPKind().Schema.Required())
	assert.Equal(t, 2, SocketKind().Schema.Required())

	secret := 0
	for _, p := range TCPKind().Schema {
		if p.Secret {
			secret++
			assert.Equal(t, "password", p.Name)
		}
	}
	assert.Equal(t, 1, secret)
}

func TestKind_New(t *testing.T) {
	sim := startSim(t)
	sim.Set("*IDN", "ACME,DMM,1,2")

	kind, params, err := ParseParameterString("socket:127.0.0.1:"+strconv.Itoa(sim.Port()), allKinds())
	require.NoError(t, err)

	tr, err := kind.New(params, fastOpts()...)
	require.NoError(t, err)
	require.Equal(t, KindSocket, tr.Kind())
	require.NoError(t, tr.Connect(t.Context()))
	defer tr.Disconnect()

	reply, err := tr.QueryText("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "ACME,DMM,1,2", reply)

	kind, params, err = ParseParameterString("serial:/dev/ttyS9:19200:dsrdtr:odd", allKinds())
	require.NoError(t, err)
	tr, err = kind.New(params)
	require.NoError(t, err)

	st, ok := tr.(*SerialTransport)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyS9", st.Address())
	assert.Equal(t, 19200, st.cfg.baudRate)
	assert.Equal(t, FlowDSRDTR, st.cfg.flow)
	assert.Equal(t, ParityOdd, st.cfg.parity)
	assert.Equal(t, DefaultSerialTerm, st.Terminator())
}

func TestMetrics_Collectors(t *testing.T) {
	sim := startSim(t)
	sim.Set("A", "1")

	tr, err := NewSocket(sim.Host(), sim.Port(), fastOpts()...)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(t.Context()))
	defer tr.Disconnect()

	_, err = tr.QueryText("A?")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	for _, c := range tr.Metrics().Collectors("instrument", prometheus.Labels{"instrument": "dmm"}) {
		require.NoError(t, reg.Register(c))
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		m := mf.GetMetric()[0]
		assert.Equal(t, "dmm", m.GetLabel()[0].GetValue())
		switch {
		case m.GetCounter() != nil:
			values[mf.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			values[mf.GetName()] = m.GetGauge().GetValue()
		}
	}

	assert.InDelta(t, 1.0, values["instrument_transport_queries_total"], 0)
	assert.InDelta(t, 1.0, values["instrument_transport_commands_total"], 0)
	assert.InDelta(t, float64(len("A?\n")), values["instrument_transport_bytes_sent_total"], 0)
	assert.InDelta(t, float64(len("1\n")), values["instrument_transport_bytes_received_total"], 0)
	assert.InDelta(t, 1.0, values["instrument_transport_connected"], 0)

	for name := range values {
		assert.True(t, strings.HasPrefix(name, "instrument_transport_"), name)
	}
}
