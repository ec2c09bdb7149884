package events

import (
	"fmt"
	"strings"
)

// MessageTemplateEngine provides dynamic message generation for events.
type MessageTemplateEngine struct {
	templates map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

// loadDefaultTemplates initializes the default message templates for all event reasons.
func (e *MessageTemplateEngine) loadDefaultTemplates() {
	// Invocation templates
	e.templates[ReasonInvocationSucceeded] = "Capability {{.Capability}} invoked successfully in {{.Duration}} ({{.Attempts}} attempts)"
	e.templates[ReasonInvocationFailed] = "Capability {{.Capability}} invocation failed after {{.Attempts}} attempts{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonInvocationRejected] = "Capability {{.Capability}} invocation rejected{{if .Error}}: {{.Error}}{{end}}"

	// Deployment templates
	e.templates[ReasonCapabilityDeployed] = "Capability {{.Capability}} deployed to namespace {{.Namespace}}"
	e.templates[ReasonCapabilityUpdated] = "Capability {{.Capability}} updated in namespace {{.Namespace}}"
	e.templates[ReasonCapabilityUndeployed] = "Capability {{.Capability}} removed from namespace {{.Namespace}}"
	e.templates[ReasonCapabilityScaled] = "Capability {{.Capability}} scaled to {{.Replicas}} replicas"
	e.templates[ReasonReconcileFailed] = "Capability {{.Capability}} reconciliation failed{{if .Error}}: {{.Error}}{{end}}"

	// Manifest templates
	e.templates[ReasonManifestLoaded] = "Manifest compiled and published"
	e.templates[ReasonManifestRejected] = "Manifest rejected, previous descriptor set kept{{if .Error}}: {{.Error}}{{end}}"
}

// Render generates the message for an event reason with the given data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	template, exists := e.templates[reason]
	if !exists {
		// Fallback for unknown event reasons
		return fmt.Sprintf("Event: %s for %s", string(reason), data.Capability)
	}

	return e.renderTemplate(template, data)
}

// SetTemplate allows customizing the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, template string) {
	e.templates[reason] = template
}

// GetTemplate returns the template for a specific event reason.
func (e *MessageTemplateEngine) GetTemplate(reason EventReason) (string, bool) {
	template, exists := e.templates[reason]
	return template, exists
}

// renderTemplate performs simple template rendering with EventData.
// This is a simplified template system that supports basic variable substitution.
func (e *MessageTemplateEngine) renderTemplate(template string, data EventData) string {
	result := template

	// Replace basic variables
	result = strings.ReplaceAll(result, "{{.Capability}}", data.Capability)
	result = strings.ReplaceAll(result, "{{.Namespace}}", data.Namespace)
	result = strings.ReplaceAll(result, "{{.Operation}}", data.Operation)
	result = strings.ReplaceAll(result, "{{.Outcome}}", data.Outcome)
	result = strings.ReplaceAll(result, "{{.Attempts}}", fmt.Sprintf("%d", data.Attempts))
	result = strings.ReplaceAll(result, "{{.Replicas}}", fmt.Sprintf("%d", data.Replicas))

	// Handle duration formatting
	if strings.Contains(result, "{{.Duration}}") {
		if data.Duration > 0 {
			result = strings.ReplaceAll(result, "{{.Duration}}", data.Duration.String())
		} else {
			result = strings.ReplaceAll(result, "{{.Duration}}", "unknown duration")
		}
	}

	// Handle conditional error blocks: {{if .Error}}...{{end}}
	if strings.Contains(result, "{{if .Error}}") {
		start := strings.Index(result, "{{if .Error}}")
		end := strings.Index(result, "{{end}}")
		if start >= 0 && end > start {
			block := result[start+len("{{if .Error}}") : end]
			if data.Error != "" {
				block = strings.ReplaceAll(block, "{{.Error}}", data.Error)
				result = result[:start] + block + result[end+len("{{end}}"):]
			} else {
				result = result[:start] + result[end+len("{{end}}"):]
			}
		}
	}

	// Plain error substitution outside conditionals
	result = strings.ReplaceAll(result, "{{.Error}}", data.Error)

	return result
}
