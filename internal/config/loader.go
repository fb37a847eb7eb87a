package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/dsenv/internal/model"
)

// EnvPrefix is the prefix of environment variables that override config
// values. Nested keys use underscores: DSENV_ENVIRONMENT_NAME.
const EnvPrefix = "DSENV"

// FileName is the config file name searched for in the working directory.
// In the home directory the same name is searched with a leading dot.
const FileName = "dsenv"

// extensions lists the accepted config file formats in search order.
var extensions = []string{".yaml", ".yml", ".json", ".jsonc"}

// Loader reads configuration from a file, the environment and defaults.
type Loader struct {
	// WorkDir is searched first. Empty means the process working directory.
	WorkDir string

	// HomeDir is searched second. Empty means the user's home directory.
	HomeDir string
}

// Load is shorthand for (&Loader{}).Load(path).
func Load(path string) (*Config, string, error) {
	return (&Loader{}).Load(path)
}

// Load builds a Config. When path is empty the standard locations are
// searched and a missing file is not an error. It returns the config and
// the file it was read from ("" when only defaults and the environment
// were used). The result is not validated.
func (l *Loader) Load(path string) (*Config, string, error) {
	if path == "" {
		found, err := l.Find()
		if err != nil {
			return nil, "", err
		}
		path = found
	} else {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, "", model.WrapCLIError(model.ExitConfigInvalid, "invalid config path", err)
		}
		path = expanded
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := readFile(v, path); err != nil {
			return nil, "", err
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToToolHook(),
		stringToExtensionHook(),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, "", model.WrapCLIError(model.ExitConfigInvalid, fmt.Sprintf("failed to decode config %s", displayPath(path)), err)
	}

	// Lists are only defaulted when the key is absent. An explicit empty
	// list means "none".
	if !v.IsSet("notebook.tools") {
		cfg.Notebook.Tools = DefaultTools()
	}
	if !v.IsSet("notebook.extensions") {
		cfg.Notebook.Extensions = DefaultExtensions()
	}

	return cfg, path, nil
}

// Find returns the first config file found in the working directory
// (dsenv.yaml, dsenv.yml, dsenv.json, dsenv.jsonc) or the home directory
// (.dsenv.yaml and so on). It returns "" when there is none.
func (l *Loader) Find() (string, error) {
	workDir := l.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	homeDir := l.HomeDir
	if homeDir == "" {
		// A missing home directory only disables the second location.
		if h, err := homedir.Dir(); err == nil {
			homeDir = h
		}
	}

	var candidates []string
	for _, ext := range extensions {
		candidates = append(candidates, filepath.Join(workDir, FileName+ext))
	}
	if homeDir != "" {
		for _, ext := range extensions {
			candidates = append(candidates, filepath.Join(homeDir, "."+FileName+ext))
		}
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// readFile loads path into v. JSONC has no viper codec, so comments and
// trailing commas are stripped first and the result is read as JSON.
func readFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.WrapCLIError(model.ExitConfigInvalid, fmt.Sprintf("config file not found: %s", path), err)
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	case ".jsonc":
		v.SetConfigType("json")
		data = jsonc.ToJSON(data)
	default:
		return model.NewCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("unsupported config format %q (use .yaml, .yml, .json or .jsonc)", ext))
	}

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return model.WrapCLIError(model.ExitConfigInvalid, fmt.Sprintf("failed to parse config %s", path), err)
	}
	return nil
}

// setDefaults registers every scalar key so AutomaticEnv can see it.
// viper only consults the environment for keys it already knows.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("environment.name", d.Environment.Name)
	v.SetDefault("environment.python", d.Environment.Python)
	v.SetDefault("environment.recreate", d.Environment.Recreate)
	v.SetDefault("conda", d.Conda)
	v.SetDefault("requirements", d.Requirements)
	v.SetDefault("channel", d.Channel)
	v.SetDefault("policy", string(d.Policy))
	v.SetDefault("stepTimeout", d.StepTimeout)
	v.SetDefault("notebook.enabled", d.Notebook.Enabled)
	v.SetDefault("target", d.Target)
	v.SetDefault("docker.container", d.Docker.Container)
	v.SetDefault("docker.user", d.Docker.User)
	v.SetDefault("docker.workdir", d.Docker.Workdir)
}

// stringToToolHook lets a tool be written as a bare package name.
func stringToToolHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(model.Tool{}) {
			return data, nil
		}
		return model.Tool{Package: reflect.ValueOf(data).String()}, nil
	}
}

// stringToExtensionHook lets an extension be written as a bare ID. A bare
// ID containing "==" is a pinned requirement.
func stringToExtensionHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(model.Extension{}) {
			return data, nil
		}
		id := reflect.ValueOf(data).String()
		kind := model.KindNBExtension
		if strings.Contains(id, "==") {
			kind = model.KindPin
		}
		return model.Extension{ID: id, Kind: kind}, nil
	}
}

func displayPath(path string) string {
	if path == "" {
		return "(defaults)"
	}
	return path
}
