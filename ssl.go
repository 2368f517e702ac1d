package atlasdb

import (
	"os"
	"strconv"
)

// synthesizeOracleSSL mutates props and returns the URL suffix to append,
// implementing spec.md §6's Oracle SSL property synthesis rules bit-exact:
//
//   - protocol=TCPS and truststore_path exists on disk: set
//     javax.net.ssl.trustStore / javax.net.ssl.trustStorePassword (default
//     "ptclient" unless the caller already set one via props).
//   - match_server_dn non-empty: set oracle.net.ssl_server_dn_match=true
//     and use the secure suffix; otherwise the non-secure suffix.
//   - two_way_ssl: require keystore_path/keystore_password (already
//     enforced by PoolConfig.Validate) and set javax.net.ssl.keyStore /
//     javax.net.ssl.keyStorePassword.
//   - non-Oracle or protocol=TCP: non-secure suffix, protocol defaults to
//     TCP (defaulting itself happens in PoolConfig.Validate).
func synthesizeOracleSSL(c *PoolConfig, props map[string]string) (urlSuffix string) {
	if c.DBKind != DBKindOracle || c.Protocol != ProtocolTCPS {
		return nonSecureURLSuffix
	}

	if c.TruststorePath != "" {
		if _, err := os.Stat(c.TruststorePath); err == nil {
			props["javax.net.ssl.trustStore"] = c.TruststorePath
			if _, ok := props["javax.net.ssl.trustStorePassword"]; !ok {
				props["javax.net.ssl.trustStorePassword"] = defaultTrustStorePass
			}
		}
	}

	if c.TwoWaySSL {
		props["javax.net.ssl.keyStore"] = c.KeystorePath
		props["javax.net.ssl.keyStorePassword"] = c.KeystorePassword
	}

	if c.MatchServerDN != "" {
		props["oracle.net.ssl_server_dn_match"] = "true"
		return secureURLSuffix
	}
	return nonSecureURLSuffix
}

// buildDriverProps assembles the property bag handed to the driver
// adapter: login, password, timeouts, plus any SSL properties injected by
// synthesizeOracleSSL. Props is opaque downstream of this function per
// spec.md §4.1.
func buildDriverProps(c *PoolConfig) (props map[string]string, effectiveURL string) {
	props = map[string]string{
		"user":           c.Login,
		"password":       c.Password,
		"socketTimeout":  strconv.Itoa(c.SocketTimeoutS),
		"connectTimeout": strconv.Itoa(c.ConnectTimeoutS),
	}

	suffix := c.URLSuffix
	if c.DBKind == DBKindOracle {
		suffix = synthesizeOracleSSL(c, props)
	}
	effectiveURL = c.URL + suffix
	return props, effectiveURL
}
