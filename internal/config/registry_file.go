package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"herald/internal/types"
)

// RegistryFile is the declarative registry loaded from YAML at process start.
// It is the single source of truth for templates, notification definitions,
// and scheduled event sources. The file is parsed once and the resulting
// structures are treated as immutable; there is no runtime mutation and no
// ambient global lookup.
type RegistryFile struct {
	Templates   []types.Template               `yaml:"templates"`
	Definitions []types.NotificationDefinition `yaml:"definitions"`
	Scheduled   []ScheduledSourceConfig        `yaml:"scheduled_sources"`
}

// ScheduledSourceConfig declares one cron-triggered event source: a
// parameterized query executed against the store, whose result rows become
// event payloads attributed to the given source id.
type ScheduledSourceConfig struct {
	ID    string `yaml:"id"`
	Cron  string `yaml:"cron"`
	Query string `yaml:"query"`
	// Params are bound positionally ($1..$n); they are never concatenated
	// into the query text.
	Params []any `yaml:"params"`
}

// LoadRegistryFile reads and parses the declarative registry YAML. It performs
// shallow shape validation only; reference validation (template ids, channel
// names, policy ids) is the notification registry's responsibility at
// registration time.
func LoadRegistryFile(path string) (*RegistryFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: fmt.Sprintf("failed to read registry file %q", path),
			Err:     err,
		}
	}
	return ParseRegistry(raw)
}

// ParseRegistry parses registry YAML from memory. Split from LoadRegistryFile
// so tests can feed documents without touching the filesystem.
func ParseRegistry(raw []byte) (*RegistryFile, error) {
	var rf RegistryFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to parse registry YAML",
			Err:     err,
		}
	}

	if err := rf.validate(); err != nil {
		return nil, err
	}

	return &rf, nil
}

func (rf *RegistryFile) validate() error {
	seenTemplates := make(map[string]bool, len(rf.Templates))
	for i, t := range rf.Templates {
		if t.ID == "" {
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("templates[%d]: missing id", i)}
		}
		if t.Body == "" {
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("template %q: missing body", t.ID)}
		}
		if seenTemplates[t.ID] {
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("template %q declared twice", t.ID)}
		}
		seenTemplates[t.ID] = true
	}

	seenDefs := make(map[string]bool, len(rf.Definitions))
	for i, d := range rf.Definitions {
		switch {
		case d.ID == "":
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("definitions[%d]: missing id", i)}
		case d.TemplateID == "":
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("definition %q: missing template_id", d.ID)}
		case d.EventSourceID == "":
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("definition %q: missing event_source_id", d.ID)}
		case len(d.Channels) == 0:
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("definition %q: no channels", d.ID)}
		}
		if seenDefs[d.ID] {
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("definition %q declared twice", d.ID)}
		}
		seenDefs[d.ID] = true
	}

	seenSources := make(map[string]bool, len(rf.Scheduled))
	for i, s := range rf.Scheduled {
		switch {
		case s.ID == "":
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("scheduled_sources[%d]: missing id", i)}
		case s.Cron == "":
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("scheduled source %q: missing cron", s.ID)}
		case s.Query == "":
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("scheduled source %q: missing query", s.ID)}
		}
		if seenSources[s.ID] {
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("scheduled source %q declared twice", s.ID)}
		}
		seenSources[s.ID] = true
	}

	return nil
}
