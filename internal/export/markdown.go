// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/promptpilot/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a conversation as a Markdown document with YAML
// frontmatter.
type MarkdownExporter struct {
	opts *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{opts: opts}
}

// Export renders the conversation as Markdown.
func (e *MarkdownExporter) Export(conv model.Conversation, msgs []model.Message) ([]byte, error) {
	var sb strings.Builder

	// YAML frontmatter
	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("title: %s\n", conv.Title))
	sb.WriteString(fmt.Sprintf("created: %s\n", conv.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("messages: %d\n", len(msgs)))
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("# %s\n\n", conv.Title))

	if e.opts.IncludeMetadata {
		sb.WriteString("## Conversation Info\n\n")
		sb.WriteString(fmt.Sprintf("- **Started:** %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05")))
		sb.WriteString(fmt.Sprintf("- **Messages:** %d\n", len(msgs)))
		if m := lastModel(msgs); m != "" {
			sb.WriteString(fmt.Sprintf("- **Model:** %s\n", m))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Messages\n\n")

	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString("---\n\n")
		}

		sb.WriteString("### You\n\n")
		if e.opts.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("*%s*\n\n", msg.Timestamp.Format("2006-01-02 15:04:05")))
		}
		sb.WriteString(msg.Question)
		sb.WriteString("\n\n")

		for _, att := range msg.Attachments {
			sb.WriteString(fmt.Sprintf("> Attachment: [%s](%s)\n", att.Name, att.URL))
		}
		if len(msg.Attachments) > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString("### Assistant\n\n")
		sb.WriteString(msg.Answer)
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\n\n")
	sb.WriteString("*Exported by PromptPilot*\n")

	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// lastModel returns the model of the most recent message that recorded one.
func lastModel(msgs []model.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Model != "" {
			return msgs[i].Model
		}
	}
	return ""
}
