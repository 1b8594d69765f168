package components

import "time"

// ParamType enumerates the declared types in a component's parameter
// schema: string, number, boolean, or json.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamJSON    ParamType = "json"
)

// ParamSpec is one entry in a Definition's parameter schema.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Default     *Value
	Required    bool
	Description string
}

// Kind distinguishes a built-in handler from a user script.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindScript  Kind = "script"
)

// Definition is a component definition. For builtins, Builtin names a
// stable internal handler key; for scripts, Source holds the script text.
type Definition struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Builtin   string    `json:"builtin,omitempty"`
	Source    string    `json:"source,omitempty"`
	Params    []ParamSpec `json:"params"`
	IsBuiltin bool      `json:"isBuiltin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocumentID implements store.Identified.
func (d Definition) DocumentID() string { return d.ID }

// ResolveParams merges raw (as stored on a FlowNode's Component variant)
// over the schema's declared defaults, coercing each value to its declared
// type, and erroring if a required parameter is missing.
func (d Definition) ResolveParams(raw map[string]Value) (map[string]Value, error) {
	out := make(map[string]Value, len(d.Params))
	for _, p := range d.Params {
		v, ok := raw[p.Name]
		if !ok {
			if p.Default != nil {
				v = *p.Default
			} else if p.Required {
				return nil, &MissingParamError{Component: d.ID, Param: p.Name}
			} else {
				out[p.Name] = NullValue
				continue
			}
		}
		coerced, err := coerce(v, p.Type)
		if err != nil {
			return nil, err
		}
		out[p.Name] = coerced
	}
	// Pass through any extra keys verbatim; scripts may read config beyond
	// the declared schema.
	for k, v := range raw {
		if _, declared := out[k]; !declared {
			out[k] = v
		}
	}
	return out, nil
}

// MissingParamError reports a required parameter left unset.
type MissingParamError struct {
	Component string
	Param     string
}

func (e *MissingParamError) Error() string {
	return "component " + e.Component + ": missing required parameter " + e.Param
}

func coerce(v Value, t ParamType) (Value, error) {
	switch t {
	case ParamNumber:
		n, err := v.AsNumber()
		if err != nil {
			return Value{}, err
		}
		return NumberValue(n), nil
	case ParamBoolean:
		b, err := v.AsBool()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case ParamString:
		return StringValue(v.AsString()), nil
	default:
		// ParamJSON and anything else: pass through untouched.
		return v, nil
	}
}
