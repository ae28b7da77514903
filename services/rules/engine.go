package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
)

// FiredAction is a notify action produced by a matching rule, with defaults applied
type FiredAction struct {
	RuleID      string
	RuleName    string
	RuleVersion int
	Channel     models.Channel
	Subject     string
	Message     string
	Destination string
}

// Engine evaluates a tenant's active rules against events
type Engine struct {
	rules  repositories.RuleRepository
	logger *zap.Logger
}

// NewEngine creates a new rule evaluation engine
func NewEngine(rules repositories.RuleRepository, logger *zap.Logger) *Engine {
	return &Engine{
		rules:  rules,
		logger: logger,
	}
}

// Evaluate returns the actions fired by the event, in rule order then action
// order. Every active rule is evaluated; a match does not stop evaluation.
func (e *Engine) Evaluate(ctx context.Context, event *models.Event) ([]FiredAction, error) {
	rules, err := e.rules.ListActive(ctx, event.TenantID, event.Type)
	if err != nil {
		return nil, services.WrapInternal("failed to load rules", err)
	}

	e.logger.Debug("loaded rules",
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("event_type", event.Type),
		zap.Int("count", len(rules)),
	)

	var fired []FiredAction
	for _, rule := range rules {
		if !Matches(rule, event.Payload) {
			continue
		}

		e.logger.Debug("rule matched",
			zap.String("rule_id", rule.ID.String()),
			zap.String("rule_name", rule.Name),
			zap.Int("version", rule.Version),
		)

		actions, err := e.actionsFor(rule, event)
		if err != nil {
			return nil, err
		}
		fired = append(fired, actions...)
	}

	return fired, nil
}

// Matches reports whether every predicate of the rule holds for the payload.
// A rule without conditions matches every payload.
func Matches(rule *models.Rule, payload map[string]interface{}) bool {
	for _, p := range predicatesFor(rule.Definition.Conditions) {
		if !p.Match(payload) {
			return false
		}
	}
	return true
}

func (e *Engine) actionsFor(rule *models.Rule, event *models.Event) ([]FiredAction, error) {
	var out []FiredAction
	for _, action := range rule.Definition.Actions {
		if action.Type != models.ActionTypeNotify {
			e.logger.Debug("skipping unsupported action",
				zap.String("rule_id", rule.ID.String()),
				zap.String("action_type", string(action.Type)),
			)
			continue
		}

		fired := FiredAction{
			RuleID:      rule.ID.String(),
			RuleName:    rule.Name,
			RuleVersion: rule.Version,
			Channel:     action.Channel,
			Subject:     fmt.Sprintf("Rule %s triggered", rule.Name),
		}
		if action.Subject != nil {
			fired.Subject = *action.Subject
		}
		if action.Template != nil {
			fired.Message = *action.Template
		} else {
			body, err := json.Marshal(event.Payload)
			if err != nil {
				return nil, services.WrapInternal("failed to encode event payload", err)
			}
			fired.Message = string(body)
		}
		if action.Destination != nil {
			fired.Destination = *action.Destination
		}

		out = append(out, fired)
	}
	return out, nil
}
