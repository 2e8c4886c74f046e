package schema

import "encoding/json"

////////////////////////////////////////////////////////////////////////////
// TYPES

// Annotations are optional hints attached to Content and resources.
type Annotations struct {
	Audience     []string `json:"audience,omitempty"`
	Priority     *float64 `json:"priority,omitempty"`
	LastModified string   `json:"lastModified,omitempty"`
}

// TextResourceContents is the text-bearing arm of an embedded resource.
type TextResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// BlobResourceContents is the binary-bearing arm of an embedded resource.
type BlobResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Blob     string `json:"blob"` // base64
}

// Content is the tagged union from spec.md §3: Text | Image | Audio |
// EmbeddedResource. The Type field is the tag; only the fields relevant to
// that tag are populated.
type Content struct {
	Type        string       `json:"type"` // "text" | "image" | "audio" | "resource"
	Text        string       `json:"text,omitempty"`
	Data        string       `json:"data,omitempty"`     // base64, image/audio
	MimeType    string       `json:"mimeType,omitempty"` // image/audio
	Resource    *ResourceArm `json:"resource,omitempty"` // embedded resource
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ResourceArm holds exactly one of the two ResourceContents shapes; it is
// marshalled as whichever one is set (text takes priority) and unmarshalled
// by probing for a "text" vs "blob" field.
type ResourceArm struct {
	Text *TextResourceContents
	Blob *BlobResourceContents
}

func (r ResourceArm) MarshalJSON() ([]byte, error) {
	if r.Text != nil {
		return json.Marshal(r.Text)
	}
	if r.Blob != nil {
		return json.Marshal(r.Blob)
	}
	return []byte("null"), nil
}

func (r *ResourceArm) UnmarshalJSON(data []byte) error {
	var probe struct {
		Text *string `json:"text"`
		Blob *string `json:"blob"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Text != nil {
		var t TextResourceContents
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		r.Text = &t
		return nil
	}
	var b BlobResourceContents
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	r.Blob = &b
	return nil
}

////////////////////////////////////////////////////////////////////////////
// CONSTRUCTORS

func NewTextContent(text string) *Content {
	return &Content{Type: "text", Text: text}
}

func NewImageContent(dataB64, mimeType string) *Content {
	return &Content{Type: "image", Data: dataB64, MimeType: mimeType}
}

func NewAudioContent(dataB64, mimeType string) *Content {
	return &Content{Type: "audio", Data: dataB64, MimeType: mimeType}
}

func NewEmbeddedTextResource(r TextResourceContents) *Content {
	return &Content{Type: "resource", Resource: &ResourceArm{Text: &r}}
}

func NewEmbeddedBlobResource(r BlobResourceContents) *Content {
	return &Content{Type: "resource", Resource: &ResourceArm{Blob: &r}}
}
