package session

// HTTP endpoint paths, relative to the /api base. Kept in one place so the
// API surface is easy to audit when the server changes.
const (
	startRunPath = "/robot/%s/start"
	stopRunPath  = "/robot/%s/stop"
	contractPath = "/robot/%s/contract"
	ioStatePath  = "/robot/%s/io/state"
)

// Realtime event names shared with the backend gateway.
const (
	EventRunJoin     = "run:join"
	EventIONeed      = "io:need"
	EventIOChunk     = "io:chunk"
	EventRobotState  = "robot:state"
	EventRobotCmd    = "robot:cmd"
	EventCycleUpdate = "cycle:update"
	EventLearnReward = "learn:reward"
)

// DefaultNamespace is the realtime namespace joined when the contract does
// not name one.
const DefaultNamespace = "/ab"
