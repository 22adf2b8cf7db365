// Package config loads the rendercast settings file.
//
// Settings live in a YAML file at an OS-specific location:
//   - Linux: $XDG_CONFIG_HOME/rendercast/config.yaml or $HOME/.config/rendercast/config.yaml
//   - macOS: $HOME/.config/rendercast/config.yaml
//   - Windows: %LOCALAPPDATA%\rendercast\config.yaml
//
// A missing file means defaults. Only settings are stored; discovered
// devices and allocated ports are never persisted.
package config
