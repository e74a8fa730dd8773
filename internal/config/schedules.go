// schedules.go loads the ScheduleConfig.schedules array spec.md §6 names
// as part of the configuration surface. Schedule definitions are
// authored as JSON (one array of entries) rather than reflect-walked env
// vars, since they are a list of admin-authored records rather than a
// flat set of scalars; each entry is validated with ozzo-validation
// before being handed to the scheduler, grounded on the teacher's request
// validation idiom in internal/server/servers.go
// (validation.ValidateStruct/validation.Field/validation.Required).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

// scheduleDTO is the on-disk JSON shape of one ScheduledCommand entry.
type scheduleDTO struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	CronExpression string            `json:"cronExpression"`
	Enabled        bool              `json:"enabled"`
	Command        commandDTO        `json:"command"`
	ServerFilter   *serverFilterDTO  `json:"serverFilter,omitempty"`
	MaxRetries     *int              `json:"maxRetries,omitempty"`
	RetryOnFailure *bool             `json:"retryOnFailure,omitempty"`
	TimeoutMs      *int              `json:"timeoutMs,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type commandDTO struct {
	Type    string         `json:"type"`
	Message *messageCfgDTO `json:"message,omitempty"`
	Stats   *statsCfgDTO   `json:"stats,omitempty"`
}

type messageCfgDTO struct {
	Type    string `json:"type"`
	Color   string `json:"color"`
	Message string `json:"message"`
}

type statsCfgDTO struct {
	Kind string `json:"kind"`
}

type serverFilterDTO struct {
	ServerIDs        []int    `json:"serverIds,omitempty"`
	ExcludeServerIDs []int    `json:"excludeServerIds,omitempty"`
	MinPlayers       *int     `json:"minPlayers,omitempty"`
	MaxPlayers       *int     `json:"maxPlayers,omitempty"`
	GameTypes        []string `json:"gameTypes,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

func (d scheduleDTO) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.CronExpression, validation.Required),
		validation.Field(&d.Command, validation.Required),
	)
}

func (d commandDTO) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Type, validation.Required, validation.In(
			string(models.CommandKindServerMessage), string(models.CommandKindServerMonitoring), string(models.CommandKindStatsProbe),
		)),
	)
}

// LoadSchedules reads a JSON array of schedule definitions from path,
// validating each entry before converting it to a models.ScheduledCommand.
// A malformed individual entry is skipped with a returned error describing
// which entry failed and why, rather than aborting the whole file — the
// caller (cmd/sentineld) logs and continues per spec.md §7's "the daemon
// must not crash because one schedule is malformed" policy.
func LoadSchedules(path string) ([]models.ScheduledCommand, []error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("config: read schedules file %q: %w", path, err)}
	}

	var dtos []scheduleDTO
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, []error{fmt.Errorf("config: parse schedules file %q: %w", path, err)}
	}

	var (
		schedules []models.ScheduledCommand
		errs      []error
	)

	for i, dto := range dtos {
		if err := dto.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: schedule entry %d (%q) invalid: %w", i, dto.ID, err))
			continue
		}
		schedules = append(schedules, dto.toModel())
	}

	return schedules, errs
}

func (d scheduleDTO) toModel() models.ScheduledCommand {
	payload := models.ScheduledCommandPayload{Type: models.CommandKind(d.Command.Type)}
	if d.Command.Message != nil {
		payload.Message = models.ServerMessageConfig{
			Type:    models.ServerMessageType(d.Command.Message.Type),
			Color:   d.Command.Message.Color,
			Message: d.Command.Message.Message,
		}
	}
	if d.Command.Stats != nil {
		payload.Stats = models.StatsProbeConfig{Kind: d.Command.Stats.Kind}
	}

	sched := models.ScheduledCommand{
		ID:             d.ID,
		Name:           d.Name,
		CronExpression: d.CronExpression,
		Command:        payload,
		Enabled:        d.Enabled,
		MaxRetries:     d.MaxRetries,
		RetryOnFailure: d.RetryOnFailure,
		TimeoutMs:      d.TimeoutMs,
		Metadata:       d.Metadata,
	}

	if d.ServerFilter != nil {
		sched.ServerFilter = d.ServerFilter.toModel()
	}

	return sched
}

func (f serverFilterDTO) toModel() *models.ServerFilter {
	filter := &models.ServerFilter{
		MinPlayers: f.MinPlayers,
		MaxPlayers: f.MaxPlayers,
		GameTypes:  f.GameTypes,
		Tags:       f.Tags,
	}

	if len(f.ServerIDs) > 0 {
		filter.ServerIDs = make(map[int]struct{}, len(f.ServerIDs))
		for _, id := range f.ServerIDs {
			filter.ServerIDs[id] = struct{}{}
		}
	}
	if len(f.ExcludeServerIDs) > 0 {
		filter.ExcludeServerIDs = make(map[int]struct{}, len(f.ExcludeServerIDs))
		for _, id := range f.ExcludeServerIDs {
			filter.ExcludeServerIDs[id] = struct{}{}
		}
	}

	return filter
}
