// Package config holds the configuration of the vaasvoter command.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/db"
	"go.vocdoni.io/vaas/retry"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

// EnvPrefix is prepended to the upper cased key of every environment
// variable, as in VAAS_APIURL.
const EnvPrefix = "VAAS"

// ConfigFileName is looked up in the data directory when no explicit
// config file is given.
const ConfigFileName = "vaasvoter.yml"

// VoterCfg is the configuration of a voter.
type VoterCfg struct {
	// APIURL is the base URL of the voting backend, prefix included
	APIURL string `mapstructure:"apiUrl"`
	// CSPURL is the base URL of the CSP, prefix included
	CSPURL string `mapstructure:"cspUrl"`
	// CSPPubKey is the hex encoded CSP root public key. If set, proofs are
	// verified locally before submission.
	CSPPubKey string `mapstructure:"cspPubKey"`
	// Salted tells whether the CSP salts its key with the election ID
	Salted bool `mapstructure:"salted"`
	// Token is the integrator bearer token used against the backend
	Token string `mapstructure:"token"`
	// CSPToken is the bearer token used against the CSP, if any
	CSPToken string `mapstructure:"cspToken"`
	// AccountKey is the hex encoded voter private key. Empty means a fresh
	// key is generated.
	AccountKey string `mapstructure:"accountKey"`
	// AuthMode, if set, must match the election (blind or signed)
	AuthMode string `mapstructure:"authMode"`
	// AuthData is sent verbatim to the CSP. Empty means the standard
	// signed voter challenge.
	AuthData []string `mapstructure:"authData"`

	// DataDir is where receipts and the optional config file are stored
	DataDir string `mapstructure:"dataDir"`
	// DBType is the receipt store backend
	DBType string `mapstructure:"dbType"`
	// LogLevel is the logging level
	LogLevel string `mapstructure:"logLevel"`
	// LogOutput is stdout, stderr or a file path
	LogOutput string `mapstructure:"logOutput"`

	// PollAttempts and PollInterval bound the confirmation polling
	PollAttempts int           `mapstructure:"pollAttempts"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	// OpenAttempts and OpenInterval bound the wait for an upcoming election
	OpenAttempts int           `mapstructure:"openAttempts"`
	OpenInterval time.Duration `mapstructure:"openInterval"`
	// Retries is the number of attempts of idempotent HTTP requests
	Retries int `mapstructure:"retries"`

	// MetricsAddr enables the prometheus endpoint on host:port
	MetricsAddr string `mapstructure:"metricsAddr"`
}

// NewConfig returns a VoterCfg holding the default values.
func NewConfig() *VoterCfg {
	dataDir := ".vaas"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".vaas")
	}
	return &VoterCfg{
		DataDir:      dataDir,
		DBType:       db.TypePebble,
		LogLevel:     "info",
		LogOutput:    "stderr",
		PollAttempts: 20,
		PollInterval: 2 * time.Second,
		OpenAttempts: 12,
		OpenInterval: 5 * time.Second,
		Retries:      3,
	}
}

// AddFlags registers the configuration flags on fs, with the defaults of
// NewConfig.
func AddFlags(fs *flag.FlagSet) {
	def := NewConfig()
	fs.String("config", "", "config file (default is dataDir/"+ConfigFileName+")")
	fs.String("apiUrl", "", "voting backend base URL")
	fs.String("cspUrl", "", "CSP base URL")
	fs.String("cspPubKey", "", "hex encoded CSP public key, enables local proof verification")
	fs.Bool("salted", false, "the CSP key is salted with the election ID")
	fs.String("token", "", "integrator bearer token")
	fs.String("cspToken", "", "CSP bearer token")
	fs.String("accountKey", "", "hex encoded voter private key (generated if empty)")
	fs.String("authMode", "", "expected auth mode: blind or signed (taken from the election if empty)")
	fs.StringSlice("authData", nil, "raw auth data sent to the CSP (comma-separated)")
	fs.StringP("dataDir", "d", def.DataDir, "directory where receipts are stored")
	fs.String("dbType", def.DBType, fmt.Sprintf("receipt db type (%s, %s)", db.TypePebble, db.TypeLevelDB))
	fs.StringP("logLevel", "l", def.LogLevel, "log level (debug, info, warn, error)")
	fs.String("logOutput", def.LogOutput, "log output (stdout, stderr or filepath)")
	fs.Int("pollAttempts", def.PollAttempts, "confirmation polling attempts")
	fs.Duration("pollInterval", def.PollInterval, "interval between confirmation polls")
	fs.Int("openAttempts", def.OpenAttempts, "attempts waiting for the election to open")
	fs.Duration("openInterval", def.OpenInterval, "interval between election open checks")
	fs.Int("retries", def.Retries, "attempts of idempotent HTTP requests")
	fs.String("metricsAddr", "", "serve prometheus metrics on host:port (disabled if empty)")
}

// Load builds a VoterCfg from fs, the environment and the config file, in
// decreasing order of precedence. The flags must have been added with
// AddFlags and parsed.
func Load(fs *flag.FlagSet) (*VoterCfg, error) {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	cfgFile := v.GetString("config")
	if cfgFile == "" {
		path := filepath.Join(v.GetString("dataDir"), ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			cfgFile = path
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: cannot read config file %s: %v", api.ErrConfig, cfgFile, err)
		}
	}

	cfg := NewConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: cannot unmarshal config: %v", api.ErrConfig, err)
	}
	return cfg, nil
}

// Validate checks the fields needed to cast a vote.
func (c *VoterCfg) Validate() error {
	if _, err := c.API(); err != nil {
		return err
	}
	if _, err := c.CSP(); err != nil {
		return err
	}
	if _, err := c.BearerToken(); err != nil {
		return err
	}
	if _, err := c.CSPBearerToken(); err != nil {
		return err
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, err := c.PubKey(); err != nil {
		return err
	}
	if c.AccountKey != "" && !util.IsHexEncodedStringWithLength(c.AccountKey, 32) {
		return fmt.Errorf("%w: accountKey must be a 32 bytes hex string", api.ErrConfig)
	}
	if c.PollAttempts <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("%w: pollAttempts and pollInterval must be positive", api.ErrConfig)
	}
	if c.OpenAttempts <= 0 || c.OpenInterval <= 0 {
		return fmt.Errorf("%w: openAttempts and openInterval must be positive", api.ErrConfig)
	}
	return nil
}

// API returns the parsed backend URL.
func (c *VoterCfg) API() (*url.URL, error) {
	return parseURL("apiUrl", c.APIURL)
}

// CSP returns the parsed CSP URL.
func (c *VoterCfg) CSP() (*url.URL, error) {
	return parseURL("cspUrl", c.CSPURL)
}

// BearerToken returns the backend token, or nil if unset.
func (c *VoterCfg) BearerToken() (*uuid.UUID, error) {
	return parseToken("token", c.Token)
}

// CSPBearerToken returns the CSP token, or nil if unset.
func (c *VoterCfg) CSPBearerToken() (*uuid.UUID, error) {
	return parseToken("cspToken", c.CSPToken)
}

// Mode returns the configured auth mode, or nil if it must be taken from
// the election.
func (c *VoterCfg) Mode() (*types.AuthMode, error) {
	if c.AuthMode == "" {
		return nil, nil
	}
	m, err := types.ParseAuthMode(c.AuthMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrConfig, err)
	}
	return &m, nil
}

// PubKey returns the decoded CSP public key, or nil if unset.
func (c *VoterCfg) PubKey() (types.HexBytes, error) {
	if c.CSPPubKey == "" {
		return nil, nil
	}
	pub, err := types.HexStringToHexBytes(c.CSPPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: cspPubKey: %v", api.ErrConfig, err)
	}
	return pub, nil
}

// Policy returns the confirmation polling policy.
func (c *VoterCfg) Policy() retry.Policy {
	return retry.Constant(c.PollInterval, c.PollAttempts)
}

// OpenPolicy returns the policy of the wait for the election to open.
func (c *VoterCfg) OpenPolicy() retry.Policy {
	return retry.Constant(c.OpenInterval, c.OpenAttempts)
}

// ReceiptsDir is the receipt store directory.
func (c *VoterCfg) ReceiptsDir() string {
	return filepath.Join(c.DataDir, "receipts")
}

func parseURL(name, s string) (*url.URL, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: %s is required", api.ErrConfig, name)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid %s %q", api.ErrConfig, name, s)
	}
	return u, nil
}

func parseToken(name, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	t, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", api.ErrConfig, name, err)
	}
	return &t, nil
}
