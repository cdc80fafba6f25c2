package ipc

// Command constants for IPC messages.
const (
	// Bridge built-ins (handled before dispatch, need the client context)
	CommandSubscribe   = "ipc/subscribe"
	CommandUnsubscribe = "ipc/unsubscribe"

	// Storage commands
	CommandStorageGet    = "storage/get"
	CommandStorageSet    = "storage/set"
	CommandStorageDelete = "storage/delete"
	CommandStorageKeys   = "storage/keys"

	// Filesystem commands
	CommandFsReadFile  = "fs/readFile"
	CommandFsWriteFile = "fs/writeFile"
	CommandFsList      = "fs/list"
	CommandFsRemove    = "fs/remove"

	// Notification commands
	CommandNotifySend    = "notify/send"
	CommandNotifyList    = "notify/list"
	CommandNotifyDismiss = "notify/dismiss"

	// File-open commands
	CommandOpenerOpen       = "opener/open"
	CommandOpenerGet        = "opener/get"
	CommandOpenerSetDefault = "opener/setDefault"

	// AppBus commands
	CommandAppBusRegister   = "appbus/registerService"
	CommandAppBusUnregister = "appbus/unregisterService"
	CommandAppBusList       = "appbus/listServices"
	CommandAppBusConnect    = "appbus/connect"
)

// Event names pushed by the host (server -> subscribed clients).
const (
	EventNotifyPosted    = "notify/posted"
	EventNotifyDismissed = "notify/dismissed"
	EventAppStarted      = "shell/appStarted"
	EventAppStopped      = "shell/appStopped"
)

// Permission strings declared by the built-in namespace handlers. The
// convention is "namespace/resource"; manifests list these verbatim, or the
// wildcard forms "namespace/*" and "*".
const (
	PermStorageRead  = "storage/read"
	PermStorageWrite = "storage/write"
	PermFsRead       = "fs/read"
	PermFsWrite      = "fs/write"
	PermNotifyPost   = "notify/post"
	PermOpenerOpen   = "opener/open"
	PermOpenerManage = "opener/manage"
	PermAppBusExpose = "appbus/expose"
	PermAppBusConnect = "appbus/connect"
)
