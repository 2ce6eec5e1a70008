// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// AI MODEL CATALOG
// =============================================================================

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Models maps friendly names to full model identifiers.
var Models = map[string]string{
	"flash":    "gemini-2.5-flash",
	"pro":      "gemini-2.5-pro",
	"maverick": "meta-llama/llama-3.3-70b-instruct:free",
	"qwen":     "qwen/qwen3-32b",
}

// ResolveModel maps a friendly name to its full identifier. Unknown names
// are passed through unchanged so new backend models work without a client
// update.
func ResolveModel(name string) string {
	if full, ok := Models[name]; ok {
		return full
	}
	return name
}

// =============================================================================
// AGENT TYPES
// =============================================================================

// AgentType selects a backend persona for the exchange.
type AgentType string

const (
	AgentGeneral   AgentType = "GENERAL"
	AgentCoding    AgentType = "CODING"
	AgentBusiness  AgentType = "BUSINESS"
	AgentCreative  AgentType = "CREATIVE"
	AgentResearch  AgentType = "RESEARCH"
	AgentTechnical AgentType = "TECHNICAL"
	AgentMarketing AgentType = "MARKETING"
	AgentEducation AgentType = "EDUCATION"
)

// agentDisplayNames holds the human-readable names for known agents.
var agentDisplayNames = map[AgentType]string{
	AgentGeneral:   "General Assistant",
	AgentCoding:    "Code Expert",
	AgentBusiness:  "Business Analyst",
	AgentCreative:  "Creative Writer",
	AgentResearch:  "Research Assistant",
	AgentTechnical: "Technical Support",
	AgentMarketing: "Marketing Specialist",
	AgentEducation: "Education Tutor",
}

// String returns the wire representation of the agent type.
func (a AgentType) String() string {
	return string(a)
}

// DisplayName returns a human-readable name for the agent.
func (a AgentType) DisplayName() string {
	if name, ok := agentDisplayNames[a]; ok {
		return name
	}
	return string(a)
}

// IsValid reports whether the agent type is in the known catalog.
func (a AgentType) IsValid() bool {
	_, ok := agentDisplayNames[a]
	return ok
}

// AgentTypes returns the known agent types in display order.
func AgentTypes() []AgentType {
	return []AgentType{
		AgentGeneral,
		AgentCoding,
		AgentBusiness,
		AgentCreative,
		AgentResearch,
		AgentTechnical,
		AgentMarketing,
		AgentEducation,
	}
}
