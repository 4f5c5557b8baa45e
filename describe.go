package cascade

// FieldDescriptor describes one form field: where it sits in the dependency
// graph, the rules gating its next resolution and its current state.
type FieldDescriptor struct {
	Field     FieldName `json:"field"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"`
	DependsOn []string  `json:"dependsOn,omitempty"`
	Level     string    `json:"level,omitempty"`
	Rules     []string  `json:"rules,omitempty"`
	Status    Status    `json:"status"`
	Selected  string    `json:"selected,omitempty"`
	Display   string    `json:"display,omitempty"`
	Choices   int       `json:"choices"`
}

// Field kinds reported by Describe.
const (
	KindRoot      = "root"
	KindCascading = "cascading"
	KindStatic    = "static"
)

// Describe returns one descriptor per field in form order.
func Describe(graph DependencyGraph, snapshot Snapshot) []FieldDescriptor {
	return describe(graph, snapshot, nil)
}

// Describe reports the controller's fields together with the precondition
// rules that currently apply to each resolvable field.
func (c *Controller) Describe() []FieldDescriptor {
	return describe(c.cfg.graph, c.Snapshot(), c.rules)
}

func describe(graph DependencyGraph, snapshot Snapshot, rules *preconditions) []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(Fields))
	for _, name := range Fields {
		field := snapshot.Field(name)
		desc := FieldDescriptor{
			Field:    name,
			Label:    name.Label(),
			Status:   field.Status,
			Selected: field.Selected,
			Display:  field.SelectedLabel(),
			Choices:  len(field.Choices()),
		}
		for _, upstream := range graph.Upstream(name) {
			desc.DependsOn = append(desc.DependsOn, upstream.String())
		}
		switch {
		case name.Static():
			desc.Kind = KindStatic
		case len(desc.DependsOn) == 0:
			desc.Kind = KindRoot
		default:
			desc.Kind = KindCascading
		}
		if desc.Kind != KindStatic {
			scope := scopeFor(graph, name, snapshot)
			level := scope.Level()
			desc.Level = level.String()
			if rules != nil {
				desc.Rules = rules.rules(scope, level)
			} else if rule := DefaultPrecondition(level); rule != "" {
				desc.Rules = []string{rule}
			}
		}
		out = append(out, desc)
	}
	return out
}

// scopeFor builds the scope field would be resolved with for the selections
// in snapshot.
func scopeFor(graph DependencyGraph, field FieldName, snapshot Snapshot) Scope {
	context := map[FieldName]string{}
	for _, upstream := range graph.Upstream(field) {
		if v := snapshot.Value(upstream); v != "" {
			context[upstream] = v
		}
	}
	return NewScope(field, context)
}
