// Package rulespublisher implements the controller's Rules Publisher
// operation: validate a pushed ruleset, persist an audit trail, and publish
// it to the resolved set of edge targets.
package rulespublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
	"github.com/ghuser/xscontrol/pkg/storage"
)

// Publisher is the subset of controller/broker.Client rulespublisher needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Store is the subset of pkg/storage.ControllerStore rulespublisher needs.
type Store interface {
	AppendRuleset(rec model.RulesetRecord) error
}

// Request is one rules-push request. At least one of EdgeID, Edges, or
// Broadcast must be set to resolve a non-empty target set; when several are
// set, their targets are combined (see resolveTargets).
type Request struct {
	Rules     []model.Rule `json:"rules" validate:"required,min=1"`
	EdgeID    string       `json:"edge_id,omitempty"`
	Edges     []string     `json:"edges,omitempty"`
	Broadcast bool         `json:"broadcast,omitempty"`
}

// Result is returned to the HTTP caller on a successful push.
type Result struct {
	Topics    []string `json:"topics"`
	Targets   []string `json:"targets"`
	RuleCount int      `json:"rule_count"`
}

const auditPath = "rules_latest.json"

// RulesPublisher pushes rulesets to edges over the shared broker connection
// and records an on-disk audit file alongside the per-target store rows.
type RulesPublisher struct {
	log   logger.Logger
	store Store
	pub   Publisher
}

// New returns a RulesPublisher.
func New(log logger.Logger, store Store, pub Publisher) *RulesPublisher {
	return &RulesPublisher{log: log, store: store, pub: pub}
}

// Push validates req, resolves its targets, persists an audit row per
// target, writes the combined rules_latest.json audit file, and publishes
// sequentially to each resolved topic.
func (p *RulesPublisher) Push(_ context.Context, req Request) (Result, error) {
	if len(req.Rules) == 0 {
		return Result{}, fmt.Errorf("%w: rules must not be empty", model.ErrRulesPushRejected)
	}

	targets := resolveTargets(req)
	if len(targets) == 0 {
		return Result{}, fmt.Errorf("%w: one of edge_id, edges, or broadcast is required", model.ErrRulesPushRejected)
	}

	data, err := json.MarshalIndent(req.Rules, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("rulespublisher: marshal rules: %w", err)
	}
	if err := storage.WriteFileAtomic(auditPath, data); err != nil {
		p.log.Error("rulespublisher: audit file write failed", "path", auditPath, "error", err)
	}

	topics := make([]string, 0, len(targets))
	now := time.Now()
	for _, target := range targets {
		rec := model.RulesetRecord{EdgeID: target, Rules: req.Rules, UploadedAt: now}
		if err := p.store.AppendRuleset(rec); err != nil {
			p.log.Error("rulespublisher: audit row failed", "target", target, "error", err)
		}

		topic := topicFor(target)
		if err := p.pub.Publish(topic, data); err != nil {
			p.log.Error("rulespublisher: publish failed", "target", target, "topic", topic, "error", err)
			continue
		}
		topics = append(topics, topic)
	}

	p.log.Info("rulespublisher: rules pushed", "targets", targets, "rule_count", len(req.Rules))
	return Result{Topics: topics, Targets: targets, RuleCount: len(req.Rules)}, nil
}

// resolveTargets builds the target set additively: edge_id and edges union
// together, and broadcast adds xsctrl/rules/all on top rather than replacing
// them — a single request may push to specific edges and broadcast at once
// (_examples/original_source/xs-controller/routes/rules.py).
func resolveTargets(req Request) []string {
	seen := make(map[string]bool)
	var targets []string

	add := func(target string) {
		if target == "" || seen[target] {
			return
		}
		seen[target] = true
		targets = append(targets, target)
	}

	add(req.EdgeID)
	for _, edge := range req.Edges {
		add(edge)
	}
	if req.Broadcast {
		add(model.BroadcastTarget)
	}

	return targets
}

func topicFor(target string) string {
	if target == model.BroadcastTarget {
		return "xsctrl/rules/all"
	}
	return fmt.Sprintf("xsctrl/rules/%s", target)
}
