package domain

import (
	"errors"
	"strings"
)

type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionCreate   ActionType = "create"
	ActionUpdate   ActionType = "update"
	ActionDelete   ActionType = "delete"
	ActionExecute  ActionType = "execute"
)

func (t ActionType) Valid() bool {
	switch t {
	case ActionNavigate, ActionCreate, ActionUpdate, ActionDelete, ActionExecute:
		return true
	}
	return false
}

// Mutating reports whether the action writes business data. Navigate is a
// pure redirect instruction and carries no data risk.
func (t ActionType) Mutating() bool {
	return t.Valid() && t != ActionNavigate
}

type CreateParams struct {
	Values map[string]any
}

type UpdateParams struct {
	Values map[string]any
}

type DeleteParams struct{}

type ExecuteParams struct {
	Event   string
	Payload map[string]any
}

// ProposedAction is one candidate operation produced upstream. Exactly one
// of the parameter fields matching Type may be set; payloads are typed at
// the boundary and never travel as loose maps past Validate.
type ProposedAction struct {
	Type   ActionType
	Label  string
	Target string

	Create  *CreateParams
	Update  *UpdateParams
	Delete  *DeleteParams
	Execute *ExecuteParams
}

type ActorContext struct {
	UserID    string
	UserRole  string
	SessionID string
	IPAddress string
	UserAgent string
}

// SplitTarget decomposes a path-like target into its collection code and
// optional record id. "/incidents/42" yields ("incidents", "42").
func SplitTarget(target string) (collection, recordID string) {
	trimmed := strings.Trim(target, "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 3)
	collection = parts[0]
	if len(parts) > 1 {
		recordID = parts[1]
	}
	return collection, recordID
}

func (a ProposedAction) Collection() string {
	collection, _ := SplitTarget(a.Target)
	return collection
}

func (a ProposedAction) RecordID() string {
	_, recordID := SplitTarget(a.Target)
	return recordID
}

func (a ProposedAction) Validate() error {
	if !a.Type.Valid() {
		return errors.New("unknown action type")
	}
	if a.Target == "" {
		return errors.New("target is required")
	}
	if a.Type.Mutating() && a.Collection() == "" {
		return errors.New("target must name a collection")
	}
	if err := a.validateParams(); err != nil {
		return err
	}
	return nil
}

func (a ProposedAction) validateParams() error {
	set := 0
	for _, present := range []bool{a.Create != nil, a.Update != nil, a.Delete != nil, a.Execute != nil} {
		if present {
			set++
		}
	}
	if set > 1 {
		return errors.New("multiple parameter payloads set")
	}
	switch a.Type {
	case ActionNavigate:
		if set != 0 {
			return errors.New("navigate takes no parameters")
		}
	case ActionCreate:
		if a.Create == nil || len(a.Create.Values) == 0 {
			return errors.New("create requires column values")
		}
	case ActionUpdate:
		if a.Update == nil || len(a.Update.Values) == 0 {
			return errors.New("update requires column values")
		}
		if a.RecordID() == "" {
			return errors.New("update requires a record id")
		}
	case ActionDelete:
		if a.Delete == nil {
			return errors.New("delete requires delete parameters")
		}
		if a.RecordID() == "" {
			return errors.New("delete requires a record id")
		}
	case ActionExecute:
		if a.Execute == nil || a.Execute.Event == "" {
			return errors.New("execute requires an event name")
		}
	}
	return nil
}
