// Package config loads qsjs's persisted defaults: a user-level settings
// file in the home directory, optionally overridden per-project by a
// settings file in the project directory (found by walking up from the
// working directory to a .qsjs or .git directory). Command-line flags always
// win over both — this package only supplies what a flag didn't set.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings mirrors the CLI's --allow-*/--log-level/--poll-ms flag set, so
// a project can commit a default sandbox policy instead of every invocation
// repeating the same flags.
type Settings struct {
	LogLevel   string   `json:"log_level,omitempty"`
	PollMillis int      `json:"poll_ms,omitempty"`
	AllowAll   bool     `json:"allow_all,omitempty"`
	AllowRead  []string `json:"allow_read,omitempty"`
	AllowWrite []string `json:"allow_write,omitempty"`
	AllowNet   []string `json:"allow_net,omitempty"`
	AllowEnv   []string `json:"allow_env,omitempty"`
	AllowRun   bool     `json:"allow_run,omitempty"`
}

// Manager merges a user settings file with a project one found by walking
// up from the working directory; project values take precedence, matching
// the precedence a project's .gitignore or .editorconfig would have.
type Manager struct {
	user    Settings
	project Settings
	merged  Settings
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Load(userConfigDir, projectDir string) error {
	if err := loadSettings(filepath.Join(userConfigDir, "settings.json"), &m.user); err != nil {
		return err
	}
	if err := loadSettings(filepath.Join(projectDir, ".qsjs", "settings.json"), &m.project); err != nil {
		return err
	}
	m.merge()
	return nil
}

func loadSettings(path string, out *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, out)
}

func (m *Manager) merge() {
	m.merged = Settings{
		LogLevel:   firstNonEmpty(m.project.LogLevel, m.user.LogLevel, "warn"),
		PollMillis: firstNonZero(m.project.PollMillis, m.user.PollMillis, 500),
		AllowAll:   m.project.AllowAll || m.user.AllowAll,
		AllowRead:  append(append([]string{}, m.user.AllowRead...), m.project.AllowRead...),
		AllowWrite: append(append([]string{}, m.user.AllowWrite...), m.project.AllowWrite...),
		AllowNet:   append(append([]string{}, m.user.AllowNet...), m.project.AllowNet...),
		AllowEnv:   append(append([]string{}, m.user.AllowEnv...), m.project.AllowEnv...),
		AllowRun:   m.project.AllowRun || m.user.AllowRun,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func (m *Manager) Get() Settings {
	return m.merged
}
