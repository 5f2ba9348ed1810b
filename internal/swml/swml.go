package swml

import (
	"bytes"
	"encoding/json"
)

// Minimal SWML (SignalWire Markup Language) document builder.
// It intentionally avoids any provider SDK dependency; documents are
// plain JSON built from the few verbs this app emits.

const Version = "1.0.0"

// Verb is a single-key SWML instruction, e.g. {"answer": {}}.
type Verb map[string]any

type Document struct {
	Version  string   `json:"version"`
	Sections Sections `json:"sections"`
}

type Sections struct {
	Main []Verb `json:"main"`
}

func NewDocument(verbs ...Verb) Document {
	if verbs == nil {
		verbs = []Verb{}
	}
	return Document{Version: Version, Sections: Sections{Main: verbs}}
}

// Render serializes a document to its JSON wire form.
func Render(d Document) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// --- verbs ---

func Answer() Verb {
	return Verb{"answer": map[string]any{}}
}

func Play(url string) Verb {
	return Verb{"play": map[string]any{"url": url}}
}

// Target is one leg of a parallel dial.
type Target struct {
	To string `json:"to"`
}

// ConnectConfig drives the connect verb. Parallel is serialized even when
// empty so a "no agents available" transfer stays a syntactically valid
// (if inert) dial block.
type ConnectConfig struct {
	Parallel  []Target `json:"parallel"`
	StatusURL string   `json:"status_url,omitempty"`
	Timeout   int      `json:"timeout,omitempty"`
}

func Connect(cfg ConnectConfig) Verb {
	if cfg.Parallel == nil {
		cfg.Parallel = []Target{}
	}
	return Verb{"connect": cfg}
}

// UserEvent pushes an event to the connected browser widget.
func UserEvent(event map[string]any) Verb {
	return Verb{"user_event": map[string]any{"event": event}}
}

// --- AI verb ---

type AIConfig struct {
	Prompt     Prompt         `json:"prompt"`
	PostPrompt *Prompt        `json:"post_prompt,omitempty"`
	SWAIG      *SWAIG         `json:"SWAIG,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

type Prompt struct {
	Text string `json:"text"`
}

// SWAIG declares the remote functions the AI agent may invoke.
type SWAIG struct {
	Defaults  *SWAIGDefaults `json:"defaults,omitempty"`
	Functions []Function     `json:"functions,omitempty"`
}

type SWAIGDefaults struct {
	WebHookURL string `json:"web_hook_url,omitempty"`
}

type Function struct {
	Function    string              `json:"function"`
	Description string              `json:"description,omitempty"`
	Fillers     map[string][]string `json:"fillers,omitempty"`
	Argument    *Argument           `json:"argument,omitempty"`
}

type Argument struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func AI(cfg AIConfig) Verb {
	return Verb{"ai": cfg}
}
