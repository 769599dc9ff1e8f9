// Package config defines the JSON configuration structs for each of
// the four BRSKI-PRM roles (spec.md §5), grounded on the teacher's
// cmd/config.go ConfigDuration/ConfigSecret pattern: plain structs
// decoded with encoding/json, with custom UnmarshalJSON types for
// values that need parsing (durations) or indirection (secrets read
// from a file rather than embedded in the config).
package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"
)

// Duration is time.Duration that unmarshals from a JSON string like
// "30s" instead of raw nanoseconds.
type Duration struct {
	time.Duration
}

var errDurationMustBeString = errors.New("config: duration must be a JSON string")

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return errDurationMustBeString
		}
		return err
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// Secret is a string-valued config field. If its JSON value starts
// with "secret:", the remainder is treated as a path and the secret's
// contents are read from that file, trailing newlines trimmed — this
// keeps credentials and private key passphrases out of the config
// file itself.
type Secret string

const secretPrefix = "secret:"

var errSecretMustBeString = errors.New("config: secret must be a JSON string")

func (s *Secret) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return errSecretMustBeString
		}
		return err
	}
	if !strings.HasPrefix(str, secretPrefix) {
		*s = Secret(str)
		return nil
	}
	contents, err := os.ReadFile(strings.TrimPrefix(str, secretPrefix))
	if err != nil {
		return err
	}
	*s = Secret(strings.TrimRight(string(contents), "\n"))
	return nil
}

// TLSConfig names the on-disk material for a role's own TLS identity.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CACertFile string
}

// KeyConfig locates a private signing key, either a PEM file on disk
// or a PKCS#11-backed key (teacher's ca/certificate-authority.go
// KeyConfig: a CA's signing key is the one place in this system an HSM
// plausibly lives).
type KeyConfig struct {
	File         string
	PKCS11       *PKCS11Config
}

// PKCS11Config names the HSM slot/object holding a signing key.
type PKCS11Config struct {
	Module     string
	TokenLabel string
	PIN        Secret
	KeyLabel   string
}

// ServiceConfig is embedded by every role's top-level config and holds
// settings common to all of them.
type ServiceConfig struct {
	ListenAddress string
	LogLevel      int
	DebugAddr     string
}

// RedisConfig configures the nonce cache's Redis client.
type RedisConfig struct {
	Addr     string
	Username string
	Password Secret
	DB       int
	TLS      *TLSConfig
}

// MySQLConfig configures the sessions/status store.
type MySQLConfig struct {
	DBConnect    Secret
	MaxOpenConns int
}

// S3Config configures archival storage for vouchers and status reports.
type S3Config struct {
	Bucket string
	Region string
	Prefix string
}

// PledgeConfig is cmd/pledge's configuration: it is a server (serves
// /.well-known/brski/dif, pi, tpvr, tper, svr, ser, scac and qps) and
// a TLS client of nothing else — all of its
// stimuli arrive over the registrar-agent's proximity TLS connection.
type PledgeConfig struct {
	ServiceConfig
	TLS            TLSConfig
	IDevIDKey      KeyConfig
	IDevIDCert     string
	ContentType    string // "jws-general" or "cose-sign1"
}

// RegistrarAgentConfig is cmd/registrar-agent's configuration: it
// dials pledges over proximity TLS and the registrar over its
// northbound API, so it carries a client cert for each leg.
type RegistrarAgentConfig struct {
	ServiceConfig
	PledgeProximityTLS TLSConfig
	PledgeURLs         []string
	RegistrarURL       string
	RegistrarClientTLS TLSConfig
	EESigningKey       KeyConfig
	EECert             string
	ContentType        string
	PerPledgeTimeout   Duration
	MaxConcurrent      int
	MySQL              MySQLConfig
}

// RegistrarConfig is cmd/registrar's configuration: the northbound
// BRSKI-PRM server plus the outbound MASA client and the storage it
// needs (sessions, nonces, CA, archive).
type RegistrarConfig struct {
	ServiceConfig
	TLS           TLSConfig
	SigningKey    KeyConfig
	SigningCert   string
	AgentEECert   string
	MASAURL       string
	MASAClientTLS TLSConfig
	CA            CAConfig
	Redis         RedisConfig
	MySQL         MySQLConfig
	Archive       *S3Config
	ContentType   string
}

// CAConfig configures the registrar's local issuing CA.
type CAConfig struct {
	IssuerCertFile string
	IssuerKey      KeyConfig
	ValidityPeriod Duration
}

// MasaConfig is cmd/masa's configuration.
type MasaConfig struct {
	ServiceConfig
	TLS           TLSConfig
	VoucherKey    KeyConfig
	VoucherCert   string
	ValidityPeriod Duration
	Archive       *S3Config
	ContentType   string
}

// Load reads and parses a JSON config file into dest, which must be a
// pointer to one of the role config structs above.
func Load(path string, dest interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}
