package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-instrument/internal/simulator"
)

func startSim(t *testing.T, opts ...simulator.Option) *simulator.Instrument {
	t.Helper()

	sim := simulator.New(opts...)
	require.NoError(t, sim.Start())
	t.Cleanup(sim.Close)

	return sim
}

func fastOpts(extra ...Option) []Option {
	return append([]Option{
		WithTimeout(200 * time.Millisecond),
		WithLoginSettleDelay(5 * time.Millisecond),
	}, extra...)
}

func TestTCP_LoginSwitchesToPollMode(t *testing.T) {
	require := require.New(t)

	sim := startSim(t, simulator.WithLogin(simulator.DefaultLogin("admin", "secret")))
	sim.Set("*IDN", "ACME,PSU-1,SN42,1.0")

	tr, err := NewTCP(sim.Host(), sim.Port(), fastOpts(WithCredentials("admin", "secret"))...)
	require.NoError(err)
	require.Equal(KindTCPIP, tr.Kind())
	require.False(tr.PollMode())

	require.NoError(tr.Connect(t.Context()))
	defer tr.Disconnect()

	require.True(tr.IsConnected())
	require.True(tr.PollMode())

	reply, err := tr.QueryText("*IDN?")
	require.NoError(err)
	require.Equal("ACME,PSU-1,SN42,1.0", reply)
	require.Equal([]string{"*IDN?"}, sim.Received())
}

func TestTCP_NoLoginPrompt(t *testing.T) {
	login := simulator.DefaultLogin("admin", "secret")
	login.Prompt = ""
	sim := startSim(t, simulator.WithLogin(login))

	tr, err := NewTCP(sim.Host(), sim.Port(), fastOpts(WithCredentials("admin", "secret"))...)
	require.NoError(t, err)

	err = tr.Connect(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommunication)
	assert.ErrorIs(t, err, ErrNoLoginPrompt)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.False(t, tr.IsConnected())
	assert.Equal(t, uint64(1), tr.Metrics().ErrorCount.Load())
}

func TestTCP_LoginAttemptsOption(t *testing.T) {
	login := simulator.DefaultLogin("admin", "secret")
	login.Prompt = ""
	sim := startSim(t, simulator.WithLogin(login))

	tr, err := NewTCP(sim.Host(), sim.Port(),
		fastOpts(WithCredentials("admin", "secret"), WithLoginAttempts(1))...)
	require.NoError(t, err)

	err = tr.Connect(t.Context())
	require.ErrorIs(t, err, ErrNoLoginPrompt)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestTCP_WrongPassword(t *testing.T) {
	sim := startSim(t, simulator.WithLogin(simulator.DefaultLogin("admin", "secret")))

	tr, err := NewTCP(sim.Host(), sim.Port(), fastOpts(WithCredentials("admin", "wrong"))...)
	require.NoError(t, err)

	err = tr.Connect(t.Context())
	require.ErrorIs(t, err, ErrLoginFailure)
	assert.NotErrorIs(t, err, ErrCommunication)
	assert.False(t, tr.IsConnected())
	assert.False(t, tr.PollMode())
}

func TestTCP_NoCredentialsSkipsLogin(t *testing.T) {
	sim := startSim(t)
	sim.Set("VOLT", "12.5")

	tr, err := NewTCP(sim.Host(), sim.Port(), fastOpts()...)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(t.Context()))
	defer tr.Disconnect()

	assert.False(t, tr.PollMode())

	v, err := tr.QueryFloat("VOLT?")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v, 1e-9)
}

func TestTCP_ConnectWithoutLogin(t *testing.T) {
	sim := startSim(t)
	sim.Set("COUNT", "7")

	tr, err := NewTCP(sim.Host(), sim.Port(), fastOpts(WithCredentials("admin", "secret"))...)
	require.NoError(t, err)
	require.NoError(t, tr.ConnectWithoutLogin(t.Context()))
	defer tr.Disconnect()

	n, err := tr.QueryInt("COUNT?")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, tr.Reconnect(t.Context()))
	assert.True(t, tr.IsConnected())
	assert.False(t, tr.PollMode())
	assert.Equal(t, uint64(1), tr.Metrics().ReconnectCount.Load())
}

func TestTCP_Socket(t *testing.T) {
	sim := startSim(t)
	sim.Set("MODE", "AUTO")

	tr, err := NewSocket(sim.Host(), sim.Port(), fastOpts(WithCredentials("ignored", "ignored"))...)
	require.NoError(t, err)
	require.Equal(t, KindSocket, tr.Kind())
	require.NoError(t, tr.Connect(t.Context()))
	defer tr.Disconnect()

	require.NoError(t, tr.Send("MODE MANUAL"))
	reply, err := tr.QueryText("MODE?")
	require.NoError(t, err)
	assert.Equal(t, "MANUAL", reply)
}

func TestTCP_RecvTimeoutKeepsLink(t *testing.T) {
	sim := startSim(t)

	tr, err := NewSocket(sim.Host(), sim.Port(), fastOpts()...)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(t.Context()))
	defer tr.Disconnect()

	_, err = tr.QueryText("UNKNOWN?")
	require.ErrorIs(t, err, ErrCommunication)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, tr.IsConnected())
}

func TestTCP_PeerCloseDisconnects(t *testing.T) {
	sim := startSim(t)
	sim.Set("X", "1")

	disconnected := make(chan struct{}, 1)
	tr, err := NewSocket(sim.Host(), sim.Port(),
		fastOpts(WithHooks(Hooks{OnDisconnect: func() { disconnected <- struct{}{} }}))...)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(t.Context()))

	_, err = tr.QueryText("X?")
	require.NoError(t, err)

	sim.DropConnections()
	time.Sleep(20 * time.Millisecond)

	_, err = tr.QueryText("X?")
	require.ErrorIs(t, err, ErrCommunication)
	assert.False(t, tr.IsConnected())
	assert.Equal(t, int32(0), tr.Metrics().Connected.Load())

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("OnDisconnect hook not called")
	}

	// the link can be re-established afterwards
	require.NoError(t, tr.Connect(t.Context()))
	defer tr.Disconnect()

	reply, err := tr.QueryText("X?")
	require.NoError(t, err)
	assert.Equal(t, "1", reply)
}

func TestTCP_DialFailure(t *testing.T) {
	sim := startSim(t)
	port := sim.Port()
	sim.Close()

	tr, err := NewSocket("127.0.0.1", port, fastOpts()...)
	require.NoError(t, err)

	err = tr.Connect(t.Context())
	require.ErrorIs(t, err, ErrCommunication)
	assert.False(t, tr.IsConnected())
}

func TestTCP_InvalidAddress(t *testing.T) {
	_, err := NewTCP("", 23)
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = NewTCP("127.0.0.1", 0)
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = NewSocket("127.0.0.1", 70000)
	require.ErrorIs(t, err, ErrInvalidParameters)

	tr, err := NewTCP("::1", 5025)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:5025", tr.Address())
}

func TestHasPrompt(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"Banner\r\nlogin: ", true},
		{"Banner\r\nLOGIN:", true},
		{"login:\r\nsomething else\r\n", false},
		{"", false},
		{"\r\n\r\n", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, hasPrompt(tt.reply, DefaultLoginPrompt), "reply %q", tt.reply)
	}
}
