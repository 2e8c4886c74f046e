package schema

import "encoding/json"

////////////////////////////////////////////////////////////////////////////
// ELICITATION SCHEMA PRIMITIVES (spec.md §3)
//
// An elicitation schema is an object schema whose properties are drawn from
// a closed set of primitive shapes. Each primitive type below marshals to
// the literal JSON Schema fragment the MCP wire format expects; there is no
// generic schema walker here — the set is closed and enumerated, per spec.

// StringSchema: {type:"string", default?:string, title?, description?}
type StringSchema struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Default     *string `json:"default,omitempty"`
}

func (s StringSchema) MarshalJSON() ([]byte, error) {
	type alias StringSchema
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "string", alias: alias(s)})
}

// NumberSchema: {type:"number", default?:float64}
type NumberSchema struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Default     *float64 `json:"default,omitempty"`
}

func (s NumberSchema) MarshalJSON() ([]byte, error) {
	type alias NumberSchema
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "number", alias: alias(s)})
}

// IntegerSchema: {type:"integer", default?:int64}
type IntegerSchema struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Default     *int64 `json:"default,omitempty"`
}

func (s IntegerSchema) MarshalJSON() ([]byte, error) {
	type alias IntegerSchema
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "integer", alias: alias(s)})
}

// BooleanSchema: {type:"boolean", default?:bool}
type BooleanSchema struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Default     *bool  `json:"default,omitempty"`
}

func (s BooleanSchema) MarshalJSON() ([]byte, error) {
	type alias BooleanSchema
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "boolean", alias: alias(s)})
}

// EnumOption is a single titled choice: {const, title}.
type EnumOption struct {
	Const string `json:"const"`
	Title string `json:"title"`
}

// EnumSchema covers both the untitled form (a bare list of string values in
// "enum") and the titled form (a parallel "enum"/"enumNames" pair, the
// legacy variant called out in spec.md §3) as well as the multi-select
// array wrapper around either.
type EnumSchema struct {
	Title       string
	Description string

	// Values holds the untitled choices; used when Options is empty.
	Values []string

	// Options holds titled choices (const+title pairs); when set, these
	// take priority and are marshalled as parallel enum/enumNames arrays
	// (the legacy form) for maximum client compatibility.
	Options []EnumOption

	// Multi, when true, wraps the enum in an array schema (multi-select).
	Multi bool
}

func (s EnumSchema) MarshalJSON() ([]byte, error) {
	inner := map[string]any{"type": "string"}
	if s.Title != "" {
		inner["title"] = s.Title
	}
	if s.Description != "" {
		inner["description"] = s.Description
	}
	if len(s.Options) > 0 {
		values := make([]string, len(s.Options))
		names := make([]string, len(s.Options))
		for i, o := range s.Options {
			values[i], names[i] = o.Const, o.Title
		}
		inner["enum"] = values
		inner["enumNames"] = names
	} else {
		inner["enum"] = s.Values
	}
	if !s.Multi {
		return json.Marshal(inner)
	}
	return json.Marshal(map[string]any{
		"type":  "array",
		"items": inner,
	})
}

// ElicitationSchema is the top-level object schema sent with an
// elicitation/create request: a closed set of named primitive properties.
type ElicitationSchema struct {
	Title      string                     `json:"title,omitempty"`
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required,omitempty"`
}

func (e *ElicitationSchema) MarshalJSON() ([]byte, error) {
	type alias ElicitationSchema
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: "object", alias: (*alias)(e)})
}

// SetProperty marshals v (one of the primitive schema types above) and
// installs it under name.
func (e *ElicitationSchema) SetProperty(name string, v json.Marshaler) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	if e.Properties == nil {
		e.Properties = make(map[string]json.RawMessage)
	}
	e.Properties[name] = data
	return nil
}

////////////////////////////////////////////////////////////////////////////
// ELICITATION REQUEST/RESULT

type CreateElicitationParams struct {
	Message         string            `json:"message"`
	RequestedSchema ElicitationSchema `json:"requestedSchema"`
}

// ElicitationAction is the user's disposition: accept, decline, or cancel.
type ElicitationAction string

const (
	ElicitationAccept  ElicitationAction = "accept"
	ElicitationDecline ElicitationAction = "decline"
	ElicitationCancel  ElicitationAction = "cancel"
)

type CreateElicitationResult struct {
	Action  ElicitationAction `json:"action"`
	Content map[string]any    `json:"content,omitempty"`
}
