package atlasdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBKind selects the driver adapter and the test query.
type DBKind string

// Recognized database kinds.
const (
	DBKindOracle   DBKind = "ORACLE"
	DBKindPostgres DBKind = "POSTGRES"
	DBKindH2       DBKind = "H2"
)

// Protocol selects how the driver talks to the endpoint.
type Protocol string

// Recognized protocols.
const (
	ProtocolTCP  Protocol = "TCP"
	ProtocolTCPS Protocol = "TCPS"
)

// Defaults mirrored from the teacher library's global.go, generalized to
// this domain. OVERDRIVE defaults to 11 per spec.md §9's resolved open
// question: it is tunable but must default to 11 to preserve behavior.
const (
	DefaultOverdrive        int32         = 11
	DefaultCooldown         time.Duration = 30 * time.Second
	DefaultSlowAcquireWarn  time.Duration = 1 * time.Second
	defaultTrustStorePass                = "ptclient" // historical JDBC default
	secureURLSuffix                      = "?ssl_server_dn_match=true"
	nonSecureURLSuffix                   = ""
)

// PoolConfig is the immutable configuration for one manager instance.
// Construct it with Load or as a struct literal; do not mutate a PoolConfig
// after handing it to NewManager.
type PoolConfig struct {
	ConnID   string
	Login    string
	Password string

	URL          string
	URLSuffix    string
	DriverClass  string
	DBKind       DBKind
	Protocol     Protocol

	MinConnections int
	MaxConnections int
	Overdrive      int32

	MaxConnectionAgeS      int
	MaxIdleTimeS           int
	CheckoutTimeoutMS      int
	SocketTimeoutS         int
	ConnectTimeoutS        int
	UnreturnedConnTimeoutMS int

	TwoWaySSL       bool
	TruststorePath  string
	KeystorePath    string
	KeystorePassword string
	MatchServerDN   string

	// TestQuery is derived from DBKind by Validate/Load; callers
	// constructing a PoolConfig by hand may leave it empty.
	TestQuery string
}

// Validate checks invariants required of a PoolConfig and fills in derived
// fields (TestQuery, default Protocol, default Overdrive). It is called by
// NewManager and Load, so an invalid config is rejected before any Manager
// exists; a failure here is a ConfigError.
func (c *PoolConfig) Validate() error {
	if c.ConnID == "" {
		return &ConfigError{Field: "conn_id", Reason: "must not be empty"}
	}
	if c.URL == "" {
		return &ConfigError{Field: "url", Reason: "must not be empty"}
	}
	switch c.DBKind {
	case DBKindOracle, DBKindPostgres, DBKindH2:
	case "":
		return &ConfigError{Field: "db_kind", Reason: "must be set"}
	default:
		return &ConfigError{Field: "db_kind", Reason: fmt.Sprintf("unrecognized kind %q", c.DBKind)}
	}
	if c.Protocol == "" {
		if c.DBKind == DBKindOracle {
			c.Protocol = ProtocolTCP
		} else {
			c.Protocol = ProtocolTCP
		}
	}
	if c.Protocol != ProtocolTCP && c.Protocol != ProtocolTCPS {
		return &ConfigError{Field: "protocol", Reason: fmt.Sprintf("unrecognized protocol %q", c.Protocol)}
	}
	if c.MinConnections < 1 {
		return &ConfigError{Field: "min_connections", Reason: "must be >= 1"}
	}
	if c.MaxConnections < c.MinConnections {
		return &ConfigError{Field: "max_connections", Reason: "must be >= min_connections"}
	}
	if c.Overdrive <= 0 {
		c.Overdrive = DefaultOverdrive
	}
	if c.TwoWaySSL {
		if c.KeystorePath == "" || c.KeystorePassword == "" {
			return &ConfigError{Field: "keystore_path", Reason: "two_way_ssl requires keystore_path and keystore_password"}
		}
	}
	if c.TestQuery == "" {
		c.TestQuery = defaultTestQuery(c.DBKind)
	}
	return nil
}

func defaultTestQuery(k DBKind) string {
	switch k {
	case DBKindOracle:
		return "SELECT 1 FROM DUAL"
	case DBKindPostgres:
		return "SELECT 1"
	case DBKindH2:
		return "SELECT 1"
	default:
		return "SELECT 1"
	}
}

// EffectiveURL returns the URL with URLSuffix appended (spec.md §3:
// "url_suffix (optional string; appended to url at use)"). For non-Oracle
// kinds this is the URL buildDriverProps hands to the driver; for Oracle,
// buildDriverProps appends the suffix chosen by synthesizeOracleSSL instead
// of URLSuffix.
func (c *PoolConfig) EffectiveURL() string {
	return c.URL + c.URLSuffix
}

// Load loads a PoolConfig from a file via Viper, with environment override
// prefix ATLASDB_ (e.g. ATLASDB_MAX_CONNECTIONS=50), following the
// defaults-then-file-then-env layering used elsewhere in the pack's
// services.
func Load(path string) (*PoolConfig, error) {
	v := viper.New()
	setConfigDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("ATLASDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("atlasdb: reading config file: %w", err)
	}

	cfg := &PoolConfig{
		ConnID:                  v.GetString("conn_id"),
		Login:                   v.GetString("login"),
		Password:                v.GetString("password"),
		URL:                     v.GetString("url"),
		URLSuffix:               v.GetString("url_suffix"),
		DriverClass:             v.GetString("driver_class"),
		DBKind:                  DBKind(strings.ToUpper(v.GetString("db_kind"))),
		Protocol:                Protocol(strings.ToUpper(v.GetString("protocol"))),
		MinConnections:          v.GetInt("min_connections"),
		MaxConnections:          v.GetInt("max_connections"),
		Overdrive:               int32(v.GetInt("overdrive")),
		MaxConnectionAgeS:       v.GetInt("max_connection_age_s"),
		MaxIdleTimeS:            v.GetInt("max_idle_time_s"),
		CheckoutTimeoutMS:       v.GetInt("checkout_timeout_ms"),
		SocketTimeoutS:          v.GetInt("socket_timeout_s"),
		ConnectTimeoutS:         v.GetInt("connect_timeout_s"),
		UnreturnedConnTimeoutMS: v.GetInt("unreturned_conn_timeout_ms"),
		TwoWaySSL:               v.GetBool("two_way_ssl"),
		TruststorePath:          v.GetString("truststore_path"),
		KeystorePath:            v.GetString("keystore_path"),
		KeystorePassword:        v.GetString("keystore_password"),
		MatchServerDN:           v.GetString("match_server_dn"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("min_connections", 2)
	v.SetDefault("max_connections", 10)
	v.SetDefault("overdrive", DefaultOverdrive)
	v.SetDefault("max_connection_age_s", 1800)
	v.SetDefault("max_idle_time_s", 300)
	v.SetDefault("checkout_timeout_ms", 5000)
	v.SetDefault("socket_timeout_s", 30)
	v.SetDefault("connect_timeout_s", 10)
	v.SetDefault("unreturned_conn_timeout_ms", 60000)
	v.SetDefault("protocol", string(ProtocolTCP))
}

// redactedProps returns a copy of props suitable for logging: any key
// whose name contains "pass" (case-insensitively) is masked, per spec.md
// §4.1.
func redactedProps(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if strings.Contains(strings.ToLower(k), "pass") {
			out[k] = "REDACTED"
			continue
		}
		out[k] = v
	}
	return out
}
