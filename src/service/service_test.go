package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openstack-backup/src/runner"
	"openstack-backup/src/service"
	"openstack-backup/src/target"
)

func failing(units ...string) *runner.Fake {
	bad := map[string]bool{}
	for _, u := range units {
		bad[u] = true
	}
	return runner.NewFake(func(c runner.Call) runner.FakeResult {
		if len(c.Args) > 0 && bad[c.Args[0]] {
			return runner.FakeResult{Code: 1, Stderr: c.Args[0] + ": unrecognized service"}
		}
		return runner.FakeResult{}
	})
}

func TestSetState_ExpandsServicesInOrder(t *testing.T) {
	fake := failing()
	ctl := service.NewController(&service.CommandBackend{Runner: fake, Tool: "service"}, target.DefaultCatalog(), nil)

	require.NoError(t, ctl.SetState(context.Background(), service.Stop, []string{"glance", "keystone"}, false))
	assert.Equal(t, []string{
		"service glance-api stop",
		"service glance-registry stop",
		"service keystone stop",
	}, fake.Lines())
}

func TestSetState_IgnoreErrorsAttemptsEveryUnit(t *testing.T) {
	fake := failing("nova-cert")
	ctl := service.NewController(&service.CommandBackend{Runner: fake, Tool: "service"}, target.DefaultCatalog(), nil)

	err := ctl.SetState(context.Background(), service.Stop, []string{"nova"}, true)
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 6)
}

func TestSetState_ReturnsFirstFailureAfterAttemptingAll(t *testing.T) {
	fake := failing("nova-cert", "nova-objectstore")
	ctl := service.NewController(&service.CommandBackend{Runner: fake, Tool: "service"}, target.DefaultCatalog(), nil)

	err := ctl.SetState(context.Background(), service.Stop, []string{"nova"}, false)
	var ctlErr *service.ControlError
	require.True(t, errors.As(err, &ctlErr), "got %v", err)
	assert.Equal(t, "nova-cert", ctlErr.Unit)
	assert.Equal(t, service.Stop, ctlErr.Action)
	assert.Len(t, fake.Calls(), 6)
}

func TestSetState_UnknownNameIsAUnit(t *testing.T) {
	fake := failing()
	ctl := service.NewController(&service.CommandBackend{Runner: fake, Tool: "systemctl"}, target.DefaultCatalog(), nil)
	require.NoError(t, ctl.SetState(context.Background(), service.Start, []string{"rabbitmq-server"}, false))
	assert.Equal(t, []string{"systemctl start rabbitmq-server"}, fake.Lines())
}

func TestSetState_RejectsUnknownAction(t *testing.T) {
	ctl := service.NewController(&service.CommandBackend{Runner: failing()}, nil, nil)
	assert.Error(t, ctl.SetState(context.Background(), service.Action("restart"), []string{"x"}, false))
}

type fakeConn struct {
	result string
	calls  []string
	closed int
}

func (f *fakeConn) StartUnitContext(_ context.Context, name, mode string, ch chan<- string) (int, error) {
	f.calls = append(f.calls, "start "+name+" "+mode)
	ch <- f.result
	return 1, nil
}

func (f *fakeConn) StopUnitContext(_ context.Context, name, mode string, ch chan<- string) (int, error) {
	f.calls = append(f.calls, "stop "+name+" "+mode)
	ch <- f.result
	return 1, nil
}

func (f *fakeConn) Close() { f.closed++ }

func TestDBusBackend(t *testing.T) {
	conn := &fakeConn{result: "done"}
	b := service.NewDBusBackendForTest(func(context.Context) (service.UnitConn, error) { return conn, nil })
	ctl := service.NewController(b, target.DefaultCatalog(), nil)

	require.NoError(t, ctl.SetState(context.Background(), service.Stop, []string{"glance"}, false))
	assert.Equal(t, []string{"stop glance-api.service replace", "stop glance-registry.service replace"}, conn.calls)
	assert.Equal(t, 2, conn.closed)

	conn.result = "failed"
	err := ctl.SetState(context.Background(), service.Start, []string{"keystone"}, false)
	var ctlErr *service.ControlError
	require.True(t, errors.As(err, &ctlErr))
	assert.Equal(t, "keystone", ctlErr.Unit)
}

func TestNewBackend(t *testing.T) {
	for _, name := range []string{"", "service", "systemctl", "dbus"} {
		_, err := service.NewBackend(name, failing())
		assert.NoError(t, err, name)
	}
	_, err := service.NewBackend("upstart", failing())
	assert.Error(t, err)
}

func TestProbe_CommandManager(t *testing.T) {
	fake := runner.NewFake(func(c runner.Call) runner.FakeResult {
		return runner.FakeResult{Stdout: "systemd 252 (252.22-1)\n+PAM +AUDIT\n"}
	})
	got, err := service.Probe(context.Background(), "systemctl", fake)
	require.NoError(t, err)
	assert.Equal(t, "systemd 252 (252.22-1)", got)
	assert.Equal(t, []string{"systemctl --version"}, fake.Lines())
}

func TestSetState_StartReversesServiceUnits(t *testing.T) {
	fake := failing()
	ctl := service.NewController(&service.CommandBackend{Runner: fake, Tool: "service"}, target.DefaultCatalog(), nil)

	require.NoError(t, ctl.SetState(context.Background(), service.Start, []string{"glance", "keystone"}, false))
	assert.Equal(t, []string{
		"service glance-registry start",
		"service glance-api start",
		"service keystone start",
	}, fake.Lines())
}

func TestSetState_OverriddenUnitsControlledOnce(t *testing.T) {
	catalog, err := target.DefaultCatalog().Merge(map[string]target.Service{
		"keystone": {Units: []string{"keystone", "apache2"}},
	})
	require.NoError(t, err)
	fake := failing()
	ctl := service.NewController(&service.CommandBackend{Runner: fake, Tool: "systemctl"}, catalog, nil)

	require.NoError(t, ctl.SetState(context.Background(), service.Stop, []string{"keystone"}, false))
	require.NoError(t, ctl.SetState(context.Background(), service.Start, []string{"keystone"}, false))
	assert.Equal(t, []string{
		"systemctl stop keystone",
		"systemctl stop apache2",
		"systemctl start apache2",
		"systemctl start keystone",
	}, fake.Lines())
}
