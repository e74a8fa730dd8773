package models

import "time"

// CommandKind is the logical command a scheduled entry wants executed.
// Concrete string values are resolved per-server by the command resolver.
type CommandKind string

const (
	CommandKindServerMessage    CommandKind = "server-message"
	CommandKindServerMonitoring CommandKind = "server-monitoring"
	CommandKindStatsProbe       CommandKind = "stats-probe"
)

// ServerMessageType enumerates the wire command families server-message
// knows how to build.
type ServerMessageType string

const (
	MessageTypeCSay    ServerMessageType = "hlx_csay"
	MessageTypeTSay    ServerMessageType = "hlx_tsay"
	MessageTypeTypeHUD ServerMessageType = "hlx_typehud"
)

// ScheduledCommandPayload is the {type, ...params} blob a ScheduledCommand
// carries. Only the fields relevant to the registered executor are read.
type ScheduledCommandPayload struct {
	Type    CommandKind
	Message ServerMessageConfig
	Stats   StatsProbeConfig
}

// StatsProbeConfig is the params shape for a stats-probe command: a
// logical command kind the command resolver maps to a concrete,
// mod-specific string per spec.md §4.5 (e.g. a per-game "playerstats" or
// "mapstats" query), per the overview's mention of "stats probes" as one
// of the two families of administrator-scheduled commands alongside
// announcements.
type StatsProbeConfig struct {
	Kind string
}

// ServerMessageConfig is the params shape for a server-message command.
type ServerMessageConfig struct {
	Type    ServerMessageType
	Color   string
	Message string
}

// ServerFilter selects which servers a schedule applies to. An absent
// filter (nil) matches every server. serverIds whitelists; excludeServerIds
// blacklists and is applied after the whitelist.
type ServerFilter struct {
	ServerIDs        map[int]struct{}
	ExcludeServerIDs map[int]struct{}
	MinPlayers       *int
	MaxPlayers       *int
	GameTypes        []string
	Tags             []string
}

// ScheduledCommand is the admin-authored config-surface entry.
type ScheduledCommand struct {
	ID             string
	Name           string
	CronExpression string
	Command        ScheduledCommandPayload
	Enabled        bool
	ServerFilter   *ServerFilter
	MaxRetries     *int
	RetryOnFailure *bool
	TimeoutMs      *int
	Metadata       map[string]string
}

// ExecutionStatus is the terminal state of a single server's execution of a
// schedule.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ScheduleExecutionResult is produced once per (schedule, server) run.
type ScheduleExecutionResult struct {
	ExecutionID      string
	ServerID         int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	Status           ExecutionStatus
	ServersProcessed int
	CommandsSent     int
	Errors           []string
}

// JobStats is the running tally a ScheduleJob keeps for its own schedule.
type JobStats struct {
	Total                 int
	Successful            int
	Failed                int
	LastExecutionStart    time.Time
	LastExecutionEnd      time.Time
	LastExecutionDuration time.Duration
}
