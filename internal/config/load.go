package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// Load resolves the platform configuration from defaults, the global config
// file (~/.sprintfoundry/config.yaml), and SPRINTFOUNDRY_* environment
// variables, in ascending precedence. A missing config file is not an error.
func Load() (*Platform, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file path, used by the --config
// flag and by tests. Empty path falls back to the default search locations.
func LoadFrom(path string) (*Platform, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, constants.StateDir))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("SPRINTFOUNDRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	platform := DefaultPlatform()
	setDefaults(v, platform)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", sferrors.ErrConfigInvalid, err)
		}
		if path != "" {
			return nil, fmt.Errorf("%w: %s", sferrors.ErrConfigInvalid, path)
		}
	}

	if err := v.Unmarshal(platform); err != nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrConfigInvalid, err)
	}

	applyEnvToggles(platform)
	return platform, nil
}

// setDefaults seeds viper with the built-in defaults so partial config files
// inherit the rest.
func setDefaults(v *viper.Viper, p *Platform) {
	v.SetDefault("log_level", p.LogLevel)
	v.SetDefault("step_timeout", p.StepTimeout)
	v.SetDefault("task_timeout", p.TaskTimeout)
	v.SetDefault("human_gate_timeout", p.HumanGateTimeout)
	v.SetDefault("registry_url", p.RegistryURL)
	v.SetDefault("budget.per_agent_tokens", p.Budget.PerAgentTokens)
	v.SetDefault("budget.per_task_total_tokens", p.Budget.PerTaskTotalTokens)
	v.SetDefault("budget.max_rework_cycles", p.Budget.MaxReworkCycles)
}

// applyEnvToggles maps the engine's documented raw environment variables onto
// platform fields. These predate the SPRINTFOUNDRY_* viper mapping and stay
// supported.
func applyEnvToggles(p *Platform) {
	if os.Getenv(constants.EnvSkipRegistryPreflight) == "true" {
		p.SkipRegistryPreflight = true
	}
	if p.Runtime == "" && os.Getenv(constants.EnvUseContainers) == "true" {
		p.UseContainers = true
	}
	if url := os.Getenv(constants.EnvNpmRegistry); url != "" {
		p.RegistryURL = url
	} else if url := os.Getenv(constants.EnvNpmRegistryLower); url != "" {
		p.RegistryURL = url
	}
}

// LoadProject reads a project config file (.sprintfoundry/config.yaml inside
// the project repository).
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- caller supplies the project path
	if err != nil {
		return nil, fmt.Errorf("load project config: %w", err)
	}
	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrConfigInvalid, err)
	}
	if project.ID == "" {
		return nil, fmt.Errorf("%w: project id %w", sferrors.ErrConfigInvalid, sferrors.ErrEmptyValue)
	}
	return &project, nil
}

// LoadCatalog reads an agent catalog YAML file: a top-level list of
// AgentDefinition entries.
func LoadCatalog(path string) ([]domain.AgentDefinition, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- caller supplies the catalog path
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrMissingAgentCatalog, err)
	}
	var catalog []domain.AgentDefinition
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrMissingAgentCatalog, err)
	}
	return catalog, nil
}

// LoadRules reads a rules YAML file: a top-level list of Rule entries.
func LoadRules(path string) ([]domain.Rule, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- caller supplies the rules path
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	var rules []domain.Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("%w: rules: %s", sferrors.ErrConfigInvalid, err)
	}
	return rules, nil
}
