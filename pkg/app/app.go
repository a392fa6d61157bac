// Package app wires process configuration, logging and metrics for the
// provisioning command.
package app

import (
	"crypto/ed25519"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/code-payments/metadata-provisioner/pkg/metrics"
	"github.com/code-payments/metadata-provisioner/pkg/provision"
	"github.com/code-payments/metadata-provisioner/pkg/solana"
)

// LoadConfig reads configuration from the yaml file at path, if it exists,
// and the environment. Environment values take precedence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	bindEnv(v)

	// viper only reports ConfigFileNotFoundError when searching for a config
	// file, so a missing explicit path is checked here.
	if len(path) > 0 {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "failed to read config %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to check if config %s exists", path)
		}
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.AppName) == 0 {
		return nil, errors.New("must specify an application name")
	}
	if _, err := solana.ParseCommitment(config.Commitment); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadKeypair returns the payer keypair from SecretKey or, when unset, the
// file at KeypairPath. Failures wrap provision.ErrConfiguration.
func LoadKeypair(config *Config) (ed25519.PrivateKey, error) {
	var raw []byte
	if len(config.SecretKey) > 0 {
		raw = []byte(config.SecretKey)
	} else {
		path, err := expandHome(config.KeypairPath)
		if err != nil {
			return nil, errors.Wrap(provision.ErrConfiguration, err.Error())
		}

		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(provision.ErrConfiguration, "failed to read keypair: %v", err)
		}
	}

	key, err := solana.ParseKeypair(raw)
	for i := range raw {
		raw[i] = 0
	}
	if err != nil {
		return nil, errors.Wrap(provision.ErrConfiguration, err.Error())
	}
	return key, nil
}

// NewMetricsProvider returns a New Relic application when a license key is
// configured, and nil otherwise.
func NewMetricsProvider(config *Config) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	nr, err := newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to new relic")
	}
	return nr, nil
}

// ConfigureLogger sets up the standard logger to write JSON to out at the
// configured level, forwarding to New Relic when metricsProvider is set.
func ConfigureLogger(config *Config, metricsProvider *newrelic.Application, out io.Writer) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(out)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
