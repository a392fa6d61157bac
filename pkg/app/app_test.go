package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/metadata-provisioner/pkg/provision"
	"github.com/code-payments/metadata-provisioner/pkg/testutil"
)

const testConfig = `
log_level: debug
endpoint: https://rpc.example.com
commitment: finalized
keypair_path: /tmp/id.json
asset:
  mint: GLCkK1D5aKAaeeQSLRXHLzdWrrkmad2rJXBD3A5mWTis
  name: Solana Training Token
  symbol: TRAIN_KHAL
  uri: https://arweave.net/1234
  royalty_bps: 250
  creators:
    - address: GLCkK1D5aKAaeeQSLRXHLzdWrrkmad2rJXBD3A5mWTis
      share: 100
`

func writeFile(t *testing.T, name string, contents []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, contents, 0600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeFile(t, "config.yaml", []byte(testConfig))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "metadata-provisioner", config.AppName)
	assert.Equal(t, "https://rpc.example.com", config.Endpoint)
	assert.Equal(t, "finalized", config.Commitment)
	assert.Equal(t, "/tmp/id.json", config.KeypairPath)
	assert.True(t, config.MasterEdition)

	assert.Equal(t, "GLCkK1D5aKAaeeQSLRXHLzdWrrkmad2rJXBD3A5mWTis", config.Asset.Mint)
	assert.Equal(t, "Solana Training Token", config.Asset.Name)
	assert.Equal(t, "TRAIN_KHAL", config.Asset.Symbol)
	assert.Equal(t, "https://arweave.net/1234", config.Asset.URI)
	assert.Equal(t, 250, config.Asset.RoyaltyBps)
	require.Len(t, config.Asset.Creators, 1)
	assert.Equal(t, 100, config.Asset.Creators[0].Share)

	// Defaults survive for keys the file doesn't set.
	assert.True(t, config.Asset.Mutable)
	assert.True(t, config.Asset.ValidateMint)

	assert.NoError(t, config.Asset.Validate())
}

func TestLoadConfig_Env(t *testing.T) {
	path := writeFile(t, "config.yaml", []byte(testConfig))

	t.Setenv("SOLANA_RPC_ENDPOINT", "mainnet-beta")
	t.Setenv("ASSET_NAME", "Renamed")
	t.Setenv("ASSET_VALIDATE_MINT", "false")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mainnet-beta", config.Endpoint)
	assert.Equal(t, "Renamed", config.Asset.Name)
	assert.False(t, config.Asset.ValidateMint)
	assert.Equal(t, "TRAIN_KHAL", config.Asset.Symbol)
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig.Endpoint, config.Endpoint)
	assert.Equal(t, defaultConfig.Commitment, config.Commitment)
	assert.Equal(t, defaultConfig.LogLevel, config.LogLevel)

	config, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "devnet", config.Endpoint)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "config.yaml", []byte("commitment: eventually\n")))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "config.yaml", []byte("app_name: \"\"\n")))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "config.yaml", []byte("asset: [\n")))
	assert.Error(t, err)
}

func TestLoadKeypair(t *testing.T) {
	key := testutil.GenerateSolanaKeypair(t)
	encoded := testutil.SolanaKeypairJSON(t, key)

	loaded, err := LoadKeypair(&Config{SecretKey: string(encoded)})
	require.NoError(t, err)
	assert.Equal(t, key, loaded)

	loaded, err = LoadKeypair(&Config{KeypairPath: writeFile(t, "id.json", encoded)})
	require.NoError(t, err)
	assert.Equal(t, key, loaded)

	_, err = LoadKeypair(&Config{KeypairPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.True(t, errors.Is(err, provision.ErrConfiguration))

	_, err = LoadKeypair(&Config{SecretKey: "[1, 2, 3]"})
	assert.True(t, errors.Is(err, provision.ErrConfiguration))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := expandHome("~/.config/solana/id.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/solana/id.json"), expanded)

	expanded, err = expandHome("/etc/id.json")
	require.NoError(t, err)
	assert.Equal(t, "/etc/id.json", expanded)
}

func TestConfigureLogger(t *testing.T) {
	original := logrus.GetLevel()
	originalOut := logrus.StandardLogger().Out
	defer func() {
		logrus.SetLevel(original)
		logrus.SetOutput(originalOut)
		logrus.SetFormatter(&logrus.TextFormatter{})
	}()

	var out bytes.Buffer
	ConfigureLogger(&Config{LogLevel: "WARN"}, nil, &out)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	logrus.Info("hidden")
	logrus.Warn("shown")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"msg":"shown"`)

	ConfigureLogger(&Config{LogLevel: "bogus"}, nil, &out)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
}

func TestNewMetricsProvider_Disabled(t *testing.T) {
	nr, err := NewMetricsProvider(&Config{})
	require.NoError(t, err)
	assert.Nil(t, nr)
}
