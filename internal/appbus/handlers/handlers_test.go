package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskd/deskd/internal/appbus"
	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/internal/ipc/permission"
	"github.com/deskd/deskd/pkg/ipc"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	return log
}

// newTestDispatch wires the appbus handlers onto a real registry so tests go
// through the full dispatch path, permission check included.
func newTestDispatch(t *testing.T) (*command.Registry, *appbus.Manager, *appbus.RuntimeDirectory) {
	t.Helper()
	log := newTestLogger()
	runtimes := appbus.NewRuntimeDirectory(log)
	manager := appbus.NewManager(runtimes, 16, log)
	registry := command.NewRegistry(log)
	NewHandlers(manager, log).RegisterHandlers(registry)
	return registry, manager, runtimes
}

func invocation(appID string, grants ...string) *command.Invocation {
	return &command.Invocation{
		AppID:    appID,
		ClientID: "client-" + appID,
		Grants:   permission.NewGrantSet(grants),
	}
}

func attachNopReceiver(runtimes *appbus.RuntimeDirectory, appID string) {
	runtimes.Attach(appID, func(conn *appbus.Connection) error { return nil })
}

func dispatch(t *testing.T, reg *command.Registry, inv *command.Invocation, cmd string, payload interface{}) (json.RawMessage, *errors.IPCError) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return reg.Dispatch(context.Background(), inv, cmd, data)
}

func TestRegisterService_UsesInvocationIdentity(t *testing.T) {
	registry, manager, _ := newTestDispatch(t)

	// The payload cannot claim another owner: the registration is keyed by
	// the caller's resolved app id.
	result, ipcErr := dispatch(t, registry, invocation("hub", ipc.PermAppBusExpose),
		ipc.CommandAppBusRegister, map[string]interface{}{"name": "chat-relay"})
	require.Nil(t, ipcErr)
	assert.JSONEq(t, `{"registered":true}`, string(result))

	services := manager.ByApp("hub")
	require.Len(t, services, 1)
	assert.Equal(t, "hub", services[0].OwnerAppID)
	assert.Equal(t, "chat-relay", services[0].Name)
}

func TestRegisterService_RequiresExposeGrant(t *testing.T) {
	registry, manager, _ := newTestDispatch(t)

	_, ipcErr := dispatch(t, registry, invocation("hub", ipc.PermAppBusConnect),
		ipc.CommandAppBusRegister, map[string]interface{}{"name": "chat-relay"})
	require.NotNil(t, ipcErr)
	assert.Equal(t, errors.KindPermissionDenied, ipcErr.Kind)
	assert.Empty(t, manager.List())
}

func TestRegisterService_Validation(t *testing.T) {
	registry, _, _ := newTestDispatch(t)

	_, ipcErr := dispatch(t, registry, invocation("hub", ipc.PermAppBusExpose),
		ipc.CommandAppBusRegister, map[string]interface{}{})
	require.NotNil(t, ipcErr)
	assert.Equal(t, errors.KindValidation, ipcErr.Kind)
}

func TestRegisterService_Duplicate(t *testing.T) {
	registry, _, _ := newTestDispatch(t)
	inv := invocation("hub", ipc.PermAppBusExpose)

	_, ipcErr := dispatch(t, registry, inv, ipc.CommandAppBusRegister, map[string]interface{}{"name": "chat-relay"})
	require.Nil(t, ipcErr)

	_, ipcErr = dispatch(t, registry, inv, ipc.CommandAppBusRegister, map[string]interface{}{"name": "chat-relay"})
	require.NotNil(t, ipcErr)
	assert.Equal(t, errors.KindAlreadyRegistered, ipcErr.Kind)
}

func TestUnregisterService_Idempotent(t *testing.T) {
	registry, _, _ := newTestDispatch(t)
	inv := invocation("hub", ipc.PermAppBusExpose)

	_, ipcErr := dispatch(t, registry, inv, ipc.CommandAppBusRegister, map[string]interface{}{"name": "chat-relay"})
	require.Nil(t, ipcErr)

	result, ipcErr := dispatch(t, registry, inv, ipc.CommandAppBusUnregister, map[string]interface{}{"name": "chat-relay"})
	require.Nil(t, ipcErr)
	assert.JSONEq(t, `{"removed":true}`, string(result))

	result, ipcErr = dispatch(t, registry, inv, ipc.CommandAppBusUnregister, map[string]interface{}{"name": "chat-relay"})
	require.Nil(t, ipcErr)
	assert.JSONEq(t, `{"removed":false}`, string(result))
}

func TestListServices_NoPermissionRequired(t *testing.T) {
	registry, manager, _ := newTestDispatch(t)
	require.Nil(t, manager.Register("hub", "chat-relay", appbus.RegisterOptions{}))
	require.Nil(t, manager.Register("notes", "export", appbus.RegisterOptions{}))

	// Discovery works with an empty grant set.
	result, ipcErr := dispatch(t, registry, invocation("viewer"), ipc.CommandAppBusList, nil)
	require.Nil(t, ipcErr)

	var resp struct {
		Services []appbus.ServiceInfo `json:"services"`
		Total    int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(result, &resp))
	assert.Equal(t, 2, resp.Total)

	// Filtered by owner.
	result, ipcErr = dispatch(t, registry, invocation("viewer"), ipc.CommandAppBusList,
		map[string]interface{}{"app_id": "hub"})
	require.Nil(t, ipcErr)
	require.NoError(t, json.Unmarshal(result, &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "hub", resp.Services[0].OwnerAppID)
}

func TestConnect_RequiresConnectGrant(t *testing.T) {
	registry, manager, runtimes := newTestDispatch(t)
	require.Nil(t, manager.Register("hub", "chat-relay", appbus.RegisterOptions{}))
	attachNopReceiver(runtimes, "hub")
	attachNopReceiver(runtimes, "client-a")

	_, ipcErr := dispatch(t, registry, invocation("client-a"),
		ipc.CommandAppBusConnect, map[string]interface{}{"app_id": "hub", "service": "chat-relay"})
	require.NotNil(t, ipcErr)
	assert.Equal(t, errors.KindPermissionDenied, ipcErr.Kind)
}

func TestConnect_Success(t *testing.T) {
	registry, manager, runtimes := newTestDispatch(t)
	require.Nil(t, manager.Register("hub", "chat-relay", appbus.RegisterOptions{Description: "relay"}))
	attachNopReceiver(runtimes, "hub")
	attachNopReceiver(runtimes, "client-a")

	result, ipcErr := dispatch(t, registry, invocation("client-a", ipc.PermAppBusConnect),
		ipc.CommandAppBusConnect, map[string]interface{}{"app_id": "hub", "service": "chat-relay"})
	require.Nil(t, ipcErr)

	var resp appbus.ConnectResult
	require.NoError(t, json.Unmarshal(result, &resp))
	assert.Equal(t, "hub", resp.OwnerAppID)
	assert.Equal(t, "chat-relay", resp.ServiceName)
	assert.Equal(t, "relay", resp.Description)
}

func TestConnect_ErrorKindsSurviveDispatch(t *testing.T) {
	registry, manager, runtimes := newTestDispatch(t)
	require.Nil(t, manager.Register("hub", "locked", appbus.RegisterOptions{
		AllowedClients: []string{"client-b"},
	}))
	attachNopReceiver(runtimes, "hub")
	attachNopReceiver(runtimes, "client-a")

	inv := invocation("client-a", ipc.PermAppBusConnect)

	// Not found and not allowed come back as distinct kinds, not as a
	// generic handler failure.
	_, ipcErr := dispatch(t, registry, inv, ipc.CommandAppBusConnect,
		map[string]interface{}{"app_id": "hub", "service": "missing"})
	require.NotNil(t, ipcErr)
	assert.Equal(t, errors.KindServiceNotFound, ipcErr.Kind)

	_, ipcErr = dispatch(t, registry, inv, ipc.CommandAppBusConnect,
		map[string]interface{}{"app_id": "hub", "service": "locked"})
	require.NotNil(t, ipcErr)
	assert.Equal(t, errors.KindClientNotAllowed, ipcErr.Kind)
}

func TestConnect_Validation(t *testing.T) {
	registry, _, _ := newTestDispatch(t)
	inv := invocation("client-a", ipc.PermAppBusConnect)

	_, ipcErr := dispatch(t, registry, inv, ipc.CommandAppBusConnect,
		map[string]interface{}{"service": "chat-relay"})
	require.NotNil(t, ipcErr)
	assert.Equal(t, errors.KindValidation, ipcErr.Kind)
}
