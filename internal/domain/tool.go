package domain

import (
	"context"
	"strings"
)

// ContentType tags a content segment. Only text is produced today.
type ContentType string

const ContentText ContentType = "text"

// Content is one segment of a capability result.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text"`
}

// TextContent builds a single text segment.
func TextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// Envelope is the uniform result of every capability invocation.
type Envelope struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ErrorEnvelope builds an isError envelope with a single text segment.
func ErrorEnvelope(msg string) Envelope {
	return Envelope{Content: []Content{TextContent(msg)}, IsError: true}
}

// Text joins the envelope's text segments.
func (e Envelope) Text() string {
	return joinContent(e.Content)
}

func joinContent(cs []Content) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.Type == ContentText {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Property declares one argument of a capability.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// InputSchema declares a capability's arguments: their primitive types and which are required.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// JSONSchema renders the schema as a plain JSON-schema map for provider and wire payloads.
func (s InputSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
	}
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	schema := map[string]any{
		"type":       typ,
		"properties": props,
	}
	if len(s.Required) > 0 {
		req := make([]any, len(s.Required))
		for i, r := range s.Required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}

// CapabilityDescriptor describes a capability to the oracle. Immutable after registration.
type CapabilityDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// Transport exchanges discover/invoke messages with whatever hosts the capabilities.
// A non-nil error from either method is a protocol failure, not a capability failure:
// capability failures come back as envelopes with IsError set.
type Transport interface {
	Discover(ctx context.Context) ([]CapabilityDescriptor, error)
	Invoke(ctx context.Context, name string, args map[string]any) (Envelope, error)
}
