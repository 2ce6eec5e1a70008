// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/promptpilot/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter renders a conversation as a standalone JSON document.
type JSONExporter struct{}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// jsonDocument is the top-level export structure.
type jsonDocument struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
	ExportedAt   time.Time          `json:"exported_at"`
}

// Export renders the conversation as indented JSON.
func (e *JSONExporter) Export(conv model.Conversation, msgs []model.Message) ([]byte, error) {
	doc := jsonDocument{
		Conversation: conv,
		Messages:     msgs,
		ExportedAt:   time.Now(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
