package atlasdb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSynthesizeOracleSSLNonOracleIsNonSecure(t *testing.T) {
	cfg := &PoolConfig{DBKind: DBKindPostgres, Protocol: ProtocolTCPS}
	props := map[string]string{}
	if got := synthesizeOracleSSL(cfg, props); got != nonSecureURLSuffix {
		t.Fatalf("suffix = %q, want non-secure for non-Oracle kind", got)
	}
	if len(props) != 0 {
		t.Fatalf("props should be untouched for non-Oracle kind, got %v", props)
	}
}

func TestSynthesizeOracleSSLPlainTCPIsNonSecure(t *testing.T) {
	cfg := &PoolConfig{DBKind: DBKindOracle, Protocol: ProtocolTCP, MatchServerDN: "CN=whatever"}
	props := map[string]string{}
	if got := synthesizeOracleSSL(cfg, props); got != nonSecureURLSuffix {
		t.Fatalf("suffix = %q, want non-secure over plain TCP regardless of match_server_dn", got)
	}
}

func TestSynthesizeOracleSSLTrustStoreAndServerDNMatch(t *testing.T) {
	dir := t.TempDir()
	ts := filepath.Join(dir, "truststore.jks")
	if err := os.WriteFile(ts, []byte("fake"), 0o600); err != nil {
		t.Fatalf("write fake truststore: %v", err)
	}

	cfg := &PoolConfig{
		DBKind:         DBKindOracle,
		Protocol:       ProtocolTCPS,
		TruststorePath: ts,
		MatchServerDN:  "CN=db.example.com",
	}
	props := map[string]string{}
	suffix := synthesizeOracleSSL(cfg, props)

	if suffix != secureURLSuffix {
		t.Fatalf("suffix = %q, want secure suffix", suffix)
	}
	if props["javax.net.ssl.trustStore"] != ts {
		t.Fatalf("trustStore = %q, want %q", props["javax.net.ssl.trustStore"], ts)
	}
	if props["javax.net.ssl.trustStorePassword"] != defaultTrustStorePass {
		t.Fatalf("trustStorePassword default not applied, got %q", props["javax.net.ssl.trustStorePassword"])
	}
	if props["oracle.net.ssl_server_dn_match"] != "true" {
		t.Fatalf("ssl_server_dn_match not set")
	}
}

func TestSynthesizeOracleSSLEmptyMatchServerDNIsNonSecure(t *testing.T) {
	cfg := &PoolConfig{DBKind: DBKindOracle, Protocol: ProtocolTCPS, MatchServerDN: ""}
	props := map[string]string{}
	if got := synthesizeOracleSSL(cfg, props); got != nonSecureURLSuffix {
		t.Fatalf("suffix = %q, want non-secure when match_server_dn is empty", got)
	}
	if _, ok := props["oracle.net.ssl_server_dn_match"]; ok {
		t.Fatal("ssl_server_dn_match should not be set when match_server_dn is empty")
	}
}

func TestSynthesizeOracleSSLMissingTrustStoreFileIsSkipped(t *testing.T) {
	cfg := &PoolConfig{
		DBKind:         DBKindOracle,
		Protocol:       ProtocolTCPS,
		TruststorePath: "/does/not/exist.jks",
	}
	props := map[string]string{}
	_ = synthesizeOracleSSL(cfg, props)
	if _, ok := props["javax.net.ssl.trustStore"]; ok {
		t.Fatal("trustStore should not be set when the file doesn't exist on disk")
	}
}

func TestSynthesizeOracleSSLTwoWaySSL(t *testing.T) {
	cfg := &PoolConfig{
		DBKind:           DBKindOracle,
		Protocol:         ProtocolTCPS,
		TwoWaySSL:        true,
		KeystorePath:     "/tmp/keystore.jks",
		KeystorePassword: "secret",
	}
	props := map[string]string{}
	_ = synthesizeOracleSSL(cfg, props)
	if props["javax.net.ssl.keyStore"] != "/tmp/keystore.jks" {
		t.Fatalf("keyStore = %q", props["javax.net.ssl.keyStore"])
	}
	if props["javax.net.ssl.keyStorePassword"] != "secret" {
		t.Fatalf("keyStorePassword = %q", props["javax.net.ssl.keyStorePassword"])
	}
}

func TestBuildDriverPropsCarriesLoginAndTimeouts(t *testing.T) {
	cfg := &PoolConfig{
		Login: "alice", Password: "s3cret",
		SocketTimeoutS: 30, ConnectTimeoutS: 10,
		URL: "host:5432/db", DBKind: DBKindPostgres,
	}
	props, effectiveURL := buildDriverProps(cfg)
	if props["user"] != "alice" || props["password"] != "s3cret" {
		t.Fatalf("login props = %v", props)
	}
	if props["socketTimeout"] != "30" || props["connectTimeout"] != "10" {
		t.Fatalf("timeout props = %v", props)
	}
	if effectiveURL != "host:5432/db" {
		t.Fatalf("effectiveURL = %q, want unchanged URL for non-Oracle kind", effectiveURL)
	}
}
