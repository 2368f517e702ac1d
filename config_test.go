package atlasdb

import "testing"

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &PoolConfig{
		ConnID:         "c1",
		URL:            "jdbc-ish://host:5432/db",
		DBKind:         DBKindPostgres,
		MinConnections: 2,
		MaxConnections: 10,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Protocol != ProtocolTCP {
		t.Fatalf("Protocol = %v, want default TCP", cfg.Protocol)
	}
	if cfg.Overdrive != DefaultOverdrive {
		t.Fatalf("Overdrive = %d, want default %d", cfg.Overdrive, DefaultOverdrive)
	}
	if cfg.TestQuery != "SELECT 1" {
		t.Fatalf("TestQuery = %q, want derived postgres default", cfg.TestQuery)
	}
}

func TestValidateRejectsMissingConnID(t *testing.T) {
	cfg := &PoolConfig{URL: "x", DBKind: DBKindH2, MinConnections: 1, MaxConnections: 1}
	err := cfg.Validate()
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestValidateRejectsMaxBelowMin(t *testing.T) {
	cfg := &PoolConfig{ConnID: "c1", URL: "x", DBKind: DBKindH2, MinConnections: 5, MaxConnections: 2}
	err := cfg.Validate()
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %v, want *ConfigError for max < min", err)
	}
}

func TestValidateRejectsUnrecognizedDBKind(t *testing.T) {
	cfg := &PoolConfig{ConnID: "c1", URL: "x", DBKind: "MYSQL", MinConnections: 1, MaxConnections: 1}
	err := cfg.Validate()
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %v, want *ConfigError for unrecognized db_kind", err)
	}
}

func TestValidateRequiresKeystoreForTwoWaySSL(t *testing.T) {
	cfg := &PoolConfig{
		ConnID: "c1", URL: "x", DBKind: DBKindOracle,
		MinConnections: 1, MaxConnections: 1, TwoWaySSL: true,
	}
	err := cfg.Validate()
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %v, want *ConfigError for two_way_ssl without keystore", err)
	}
}

func TestOracleTestQueryDefault(t *testing.T) {
	cfg := &PoolConfig{ConnID: "c1", URL: "x", DBKind: DBKindOracle, MinConnections: 1, MaxConnections: 1}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.TestQuery != "SELECT 1 FROM DUAL" {
		t.Fatalf("TestQuery = %q, want Oracle default", cfg.TestQuery)
	}
}

func TestEffectiveURLAppendsSuffix(t *testing.T) {
	cfg := &PoolConfig{URL: "host:1521/svc", URLSuffix: "?foo=bar"}
	if got, want := cfg.EffectiveURL(), "host:1521/svc?foo=bar"; got != want {
		t.Fatalf("EffectiveURL = %q, want %q", got, want)
	}
}

func TestRedactedPropsMasksPasswordLikeKeys(t *testing.T) {
	props := map[string]string{
		"user":                      "alice",
		"password":                  "s3cret",
		"javax.net.ssl.keyStorePassword": "s3cret2",
	}
	out := redactedProps(props)
	if out["user"] != "alice" {
		t.Fatalf("user should pass through unredacted, got %q", out["user"])
	}
	if out["password"] != "REDACTED" {
		t.Fatalf("password should be redacted, got %q", out["password"])
	}
	if out["javax.net.ssl.keyStorePassword"] != "REDACTED" {
		t.Fatalf("keyStorePassword should be redacted, got %q", out["javax.net.ssl.keyStorePassword"])
	}
}
