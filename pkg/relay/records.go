package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
	"github.com/dd0wney/cluso-relay/pkg/taskqueue"
)

// PDLMarker records a PDL product event: a completed submission, a removal, or a product
// found in PDL that another system sent.
type PDLMarker struct {
	EventID      string `json:"event_id"`
	UpdateTime   int64  `json:"update_time"`
	ProductCode  string `json:"product_code"`
	SourceServer int    `json:"source_server,omitempty"`
}

// Validate checks the fields the merge relies on
func (m PDLMarker) Validate() error {
	if m.EventID == "" {
		return errors.New("pdl marker missing event id")
	}
	if m.ProductCode == "" {
		return errors.New("pdl marker missing product code")
	}
	return nil
}

// AnalystOverride carries the parameters of an analyst intervention on one event
type AnalystOverride struct {
	EventID    string          `json:"event_id"`
	AnalystID  string          `json:"analyst_id"`
	ActionTime int64           `json:"action_time"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Validate checks the fields the merge relies on
func (o AnalystOverride) Validate() error {
	if o.EventID == "" {
		return errors.New("analyst override missing event id")
	}
	if o.AnalystID == "" {
		return errors.New("analyst override missing analyst id")
	}
	return nil
}

func isPDLKind(k relayitem.Kind) bool {
	return k == relayitem.KindPDLCompletion || k == relayitem.KindPDLRemoval || k == relayitem.KindPDLForeign
}

// PublishPDLMarker writes a locally produced PDL marker so the partner picks it up.
// The marker's UpdateTime is the record timestamp. It reports whether the store changed.
func PublishPDLMarker(ctx context.Context, s store.Store, kind relayitem.Kind, m PDLMarker) (bool, error) {
	if !isPDLKind(kind) {
		return false, fmt.Errorf("%s is not a PDL marker kind", kind)
	}
	if err := m.Validate(); err != nil {
		return false, err
	}
	payload, err := relayitem.Encode(m)
	if err != nil {
		return false, err
	}
	it, err := s.Submit(ctx, relayitem.MakeKey(kind, m.EventID), m.UpdateTime, payload, false)
	if err != nil {
		return false, err
	}
	return it != nil, nil
}

// PublishAnalystOverride writes a locally entered override
func PublishAnalystOverride(ctx context.Context, s store.Store, o AnalystOverride) (bool, error) {
	if err := o.Validate(); err != nil {
		return false, err
	}
	payload, err := relayitem.Encode(o)
	if err != nil {
		return false, err
	}
	it, err := s.Submit(ctx, relayitem.MakeKey(relayitem.KindAnalystOverride, o.EventID), o.ActionTime, payload, false)
	if err != nil {
		return false, err
	}
	return it != nil, nil
}

// overrideTask wraps a replicated override item as a unit of work. The whole item
// travels in the payload so the handler can store it with its original timestamp.
func overrideTask(it *relayitem.Item, o AnalystOverride, server int, now int64) (taskqueue.Task, error) {
	payload, err := json.Marshal(it)
	if err != nil {
		return taskqueue.Task{}, err
	}
	return taskqueue.Task{
		EventKey:      o.EventID,
		ScheduledTime: now,
		SubmitTime:    now,
		SubmitterID:   fmt.Sprintf("relay-%d", server),
		OpCode:        taskqueue.OpAnalystIntervention,
		Stage:         taskqueue.StageInitial,
		Payload:       payload,
	}, nil
}

// OverrideTaskHandler returns a task handler that stores replicated analyst overrides.
// Once stored, later deliveries of the same override are no longer accepted.
func OverrideTaskHandler(s store.Store) taskqueue.Handler {
	return func(ctx context.Context, task taskqueue.Task) error {
		if task.OpCode != taskqueue.OpAnalystIntervention {
			return fmt.Errorf("unexpected op code %d", task.OpCode)
		}
		var it relayitem.Item
		if err := json.Unmarshal(task.Payload, &it); err != nil {
			return fmt.Errorf("failed to decode override task %s: %w", task.ID, err)
		}
		if _, err := s.Submit(ctx, it.Key, it.Timestamp, it.Payload, false); err != nil {
			return fmt.Errorf("failed to store override %s: %w", it.Key, err)
		}
		return nil
	}
}
