// Package config loads pinresolve settings from an HCL file.
//
//	index_url          = "https://pypi.org"
//	metadata_index     = "deps.yaml"
//	python_version     = "3.12"
//	retries            = 10
//	timeout            = "30s"
//	pip                = "pip"
//	bootstrap_packages = ["pip", "setuptools"]
//	environment = {
//	  sys_platform = "linux"
//	}
//	epochs = {
//	  numpy = -50
//	}
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bayleafwalker/pinresolve/internal/install"
	"github.com/bayleafwalker/pinresolve/internal/marker"
	"github.com/bayleafwalker/pinresolve/internal/metadata"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
	"github.com/bayleafwalker/pinresolve/internal/resolver"
	"github.com/bayleafwalker/pinresolve/internal/version"
)

type Config struct {
	// IndexURL is the base of the PyPI JSON API used for dependency metadata.
	IndexURL string
	// MetadataIndex is an optional YAML index consulted before any remote source.
	MetadataIndex string
	// MetadataServer is an optional gRPC metadata server address.
	MetadataServer    string
	PythonVersion     string
	Retries           int
	Timeout           time.Duration
	Pip               string
	BootstrapPackages []string
	// Environment overrides individual marker variables.
	Environment map[string]string
	// Epochs orders installation batches by package name.
	Epochs map[string]int
}

// fileConfig mirrors the HCL schema; unset attributes keep their defaults.
type fileConfig struct {
	IndexURL          *string           `hcl:"index_url,optional"`
	MetadataIndex     *string           `hcl:"metadata_index,optional"`
	MetadataServer    *string           `hcl:"metadata_server,optional"`
	PythonVersion     *string           `hcl:"python_version,optional"`
	Retries           *int              `hcl:"retries,optional"`
	Timeout           *string           `hcl:"timeout,optional"`
	Pip               *string           `hcl:"pip,optional"`
	BootstrapPackages []string          `hcl:"bootstrap_packages,optional"`
	Environment       map[string]string `hcl:"environment,optional"`
	Epochs            map[string]int    `hcl:"epochs,optional"`
}

func Default() Config {
	return Config{
		IndexURL:          metadata.DefaultIndexURL,
		PythonVersion:     marker.DefaultPythonVersion,
		Retries:           10,
		Timeout:           30 * time.Second,
		Pip:               "pip",
		BootstrapPackages: append([]string(nil), resolver.DefaultBootstrapPackages...),
		Environment:       map[string]string{},
		Epochs:            install.DefaultEpochs(),
	}
}

// Load reads path on top of Default. Environment and epoch entries from the
// file are added to the defaults rather than replacing them.
func Load(ctx context.Context, path string) (Config, error) {
	logger := log.FromContext(ctx)
	cfg := Default()

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config file %s: %s", path, diags.Error())
	}
	var fc fileConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &fc); diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode config file %s: %s", path, diags.Error())
	}

	if fc.IndexURL != nil {
		cfg.IndexURL = *fc.IndexURL
	}
	if fc.MetadataIndex != nil {
		cfg.MetadataIndex = *fc.MetadataIndex
	}
	if fc.MetadataServer != nil {
		cfg.MetadataServer = *fc.MetadataServer
	}
	if fc.PythonVersion != nil {
		cfg.PythonVersion = *fc.PythonVersion
	}
	if fc.Retries != nil {
		cfg.Retries = *fc.Retries
	}
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("config file %s: timeout: %w", path, err)
		}
		cfg.Timeout = d
	}
	if fc.Pip != nil {
		cfg.Pip = *fc.Pip
	}
	if fc.BootstrapPackages != nil {
		cfg.BootstrapPackages = fc.BootstrapPackages
	}
	for k, v := range fc.Environment {
		cfg.Environment[k] = v
	}
	for k, v := range fc.Epochs {
		cfg.Epochs[requirement.CanonicalName(k)] = v
	}

	logger.V(1).Info("loaded config file", "path", path)
	return cfg, nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Pip == "" {
		errs = append(errs, errors.New("pip must not be empty"))
	}
	if c.IndexURL == "" && c.MetadataIndex == "" && c.MetadataServer == "" {
		errs = append(errs, errors.New("at least one of index_url, metadata_index and metadata_server is required"))
	}
	if _, err := version.ParseVersion(c.PythonVersion); err != nil {
		errs = append(errs, fmt.Errorf("python_version: %w", err))
	}
	return utilerrors.NewAggregate(errs)
}

// MarkerEnvironment is the environment markers are evaluated against.
func (c Config) MarkerEnvironment() marker.Environment {
	env := marker.DefaultEnvironment(c.PythonVersion)
	for k, v := range c.Environment {
		env[k] = v
	}
	return env
}
