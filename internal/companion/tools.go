package companion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/kindred/internal/live"
	"github.com/ent0n29/kindred/internal/reminders"
)

const (
	ToolChangePersonality = "changePersonality"
	ToolChangeMode        = "changeMode"
	ToolSetReminder       = "setReminder"
)

// LiveTools builds the tool registry for one live session of userID. ctx
// bounds the store calls made by the handlers.
func (s *Service) LiveTools(ctx context.Context, userID string) *live.Dispatcher {
	log := s.logger.With(zap.String("user_id", userID))

	changePersonality := live.EnumTool(
		ToolChangePersonality,
		"Switch the companion to a different personality when the user asks for one.",
		"personality",
		s.catalog.PersonalityIDs(),
		func(id string) string {
			if _, err := s.SetPersonality(ctx, userID, id); err != nil {
				log.Warn("change personality failed", zap.String("personality", id), zap.Error(err))
				return ""
			}
			p, _ := s.catalog.Personality(id)
			return "Personality changed to " + p.Name
		},
	)

	changeMode := live.EnumTool(
		ToolChangeMode,
		"Switch the app to another mode when the user asks.",
		"mode",
		s.catalog.SelectableModes(),
		func(mode string) string {
			if _, err := s.SetMode(ctx, userID, mode); err != nil {
				log.Warn("change mode failed", zap.String("mode", mode), zap.Error(err))
				return ""
			}
			return "Mode changed to " + mode
		},
	)

	setReminder := live.Tool{
		Spec: live.ToolSpec{
			Name:        ToolSetReminder,
			Description: "Set a reminder for the user.",
			Params: []live.ToolParam{
				{Name: "text", Description: "What to remind the user about.", Required: true},
				{Name: "when", Description: "When to remind: an RFC3339 timestamp, \"YYYY-MM-DD HH:MM\", or relative like \"in 10m\".", Required: true},
			},
		},
		Handle: func(args map[string]any) (string, string) {
			r, err := s.AddReminder(ctx, userID, live.StringArg(args, "text"), live.StringArg(args, "when"))
			if err != nil {
				log.Info("set reminder rejected", zap.Error(err))
				return fmt.Sprintf("Could not set the reminder: %v", err), ""
			}
			return reminders.Describe(r, nil), "Reminder set"
		},
	}

	return live.NewDispatcher(changePersonality, changeMode, setReminder)
}
