package source

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/constants"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/types"
)

var snmpLog = logging.Component("snmp")

// =============================================================================
// SNMP Configuration
// =============================================================================

// SNMPConfig holds the agent address and credentials.
type SNMPConfig struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// v2c
	Community string `yaml:"community"`

	// v3
	SecurityName  string `yaml:"security_name"`
	SecurityLevel string `yaml:"security_level"`
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthPassword  string `yaml:"auth_password"`
	PrivProtocol  string `yaml:"priv_protocol"`
	PrivPassword  string `yaml:"priv_password"`
	ContextName   string `yaml:"context_name"`

	// Timing
	TimeoutMs uint32 `yaml:"timeout_ms"`
	Retries   uint32 `yaml:"retries"`
}

// Channel maps one table channel to an OID. The polled value is
// multiplied by Scale; a zero Scale means 1.
type Channel struct {
	Name  string  `yaml:"name"`
	OID   string  `yaml:"oid"`
	Scale float64 `yaml:"scale"`
}

// Validate checks the configuration.
func (c *SNMPConfig) Validate() error {
	if c.Host == "" {
		return errors.NewMissingField("source.snmp.host")
	}
	isV3 := c.SecurityName != ""
	if isV3 && !constants.IsValidSecurityLevel(c.SecurityLevel) {
		return errors.NewValidation("source.snmp.security_level",
			fmt.Sprintf("unknown level %q", c.SecurityLevel))
	}
	if !isV3 && c.Community == "" {
		return errors.NewValidation("source.snmp.community",
			"SNMP v2c requires community string (refusing to use insecure default)")
	}
	return nil
}

// =============================================================================
// SNMP Source
// =============================================================================

// snmpClient is the part of gosnmp the source uses.
type snmpClient interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Close() error
}

type goSNMPClient struct {
	*gosnmp.GoSNMP
}

func (c goSNMPClient) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}

// SNMP reads every channel with one GET per reading. A channel whose OID
// fails or returns a non-numeric value reads as its last known value when
// one is available, otherwise as NaN.
type SNMP struct {
	cfg      SNMPConfig
	channels []Channel
	oids     []string
	index    map[string]int

	// failures counts consecutive failed GETs.
	failures int

	dial func(ctx context.Context, cfg SNMPConfig) (snmpClient, error)
}

// NewSNMP returns an SNMP source for channels.
func NewSNMP(cfg SNMPConfig, channels []Channel) (*SNMP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, errors.NewMissingField("source.snmp.channels")
	}

	s := &SNMP{
		cfg:      cfg,
		channels: channels,
		oids:     make([]string, len(channels)),
		index:    make(map[string]int, len(channels)),
		dial:     dialSNMP,
	}
	for i, ch := range channels {
		if ch.OID == "" {
			return nil, errors.NewMissingField(fmt.Sprintf("source.snmp.channels[%d].oid", i))
		}
		oid := normalizeOID(ch.OID)
		s.oids[i] = oid
		s.index[oid] = i
	}
	return s, nil
}

// Width implements Source.
func (s *SNMP) Width() int { return len(s.channels) }

// Read implements Source.
func (s *SNMP) Read(ctx context.Context, last types.Fallbacks) (types.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := types.EmptyReading(len(s.channels))

	if err := s.get(ctx, out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.failures++
		if s.failures >= constants.ConsecutiveFailuresForWarn {
			snmpLog.Warn("snmp get failed", "host", s.cfg.Host, "failures", s.failures, "error", err)
		} else {
			snmpLog.Debug("snmp get failed", "host", s.cfg.Host, "error", err)
		}
	} else {
		s.failures = 0
	}

	for i, ch := range s.channels {
		if !types.IsNoValue(out[i]) {
			continue
		}
		if v, ok := last.Get(ch.Name); ok {
			snmpLog.Debug("using last known value", "channel", ch.Name, "value", v)
			out[i] = v
		}
	}

	return out, nil
}

func (s *SNMP) get(ctx context.Context, out types.Reading) error {
	client, err := s.dial(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	pdu, err := client.Get(s.oids)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}

	for _, variable := range pdu.Variables {
		i, ok := s.index[normalizeOID(variable.Name)]
		if !ok {
			continue
		}
		v, err := toFloat(variable)
		if err != nil {
			snmpLog.Debug("unusable value", "channel", s.channels[i].Name, "oid", variable.Name, "error", err)
			continue
		}
		if scale := s.channels[i].Scale; scale != 0 {
			v *= scale
		}
		out[i] = v
	}
	return nil
}

// toFloat extracts a number from a variable binding.
func toFloat(variable gosnmp.SnmpPDU) (float64, error) {
	switch variable.Type {
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.Uinteger32:
		return float64(gosnmp.ToBigInt(variable.Value).Uint64()), nil

	case gosnmp.Integer:
		return float64(variable.Value.(int)), nil

	case gosnmp.TimeTicks:
		return float64(variable.Value.(uint32)), nil

	case gosnmp.OpaqueFloat:
		return float64(variable.Value.(float32)), nil

	case gosnmp.OpaqueDouble:
		return variable.Value.(float64), nil

	case gosnmp.OctetString:
		// Many sensor agents report readings as decimal strings.
		v, err := strconv.ParseFloat(strings.TrimSpace(string(variable.Value.([]byte))), 64)
		if err != nil {
			return math.NaN(), fmt.Errorf("not a number: %w", err)
		}
		return v, nil

	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return math.NaN(), fmt.Errorf("OID not found")

	default:
		return math.NaN(), fmt.Errorf("unsupported type: %v", variable.Type)
	}
}

func normalizeOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

// =============================================================================
// SNMP Client Creation
// =============================================================================

func dialSNMP(ctx context.Context, cfg SNMPConfig) (snmpClient, error) {
	snmp := newGoSNMP(ctx, cfg)
	if err := snmp.Connect(); err != nil {
		return nil, err
	}
	return goSNMPClient{snmp}, nil
}

func newGoSNMP(ctx context.Context, cfg SNMPConfig) *gosnmp.GoSNMP {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultSNMPPort
	}

	timeout := cfg.TimeoutMs
	if timeout == 0 {
		timeout = config.DefaultSNMPTimeoutMs
	}

	retries := cfg.Retries
	if retries == 0 {
		retries = config.DefaultSNMPRetries
	}

	snmp := &gosnmp.GoSNMP{
		Context: ctx,
		Target:  cfg.Host,
		Port:    port,
		Timeout: time.Duration(timeout) * time.Millisecond,
		Retries: int(retries),
		MaxOids: gosnmp.MaxOids,
	}

	// Configure version based on presence of security name
	if cfg.SecurityName != "" {
		snmp.Version = gosnmp.Version3
		snmp.SecurityModel = gosnmp.UserSecurityModel
		snmp.MsgFlags = msgFlags(cfg.SecurityLevel)
		snmp.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.SecurityName,
			AuthenticationProtocol:   authProtocol(cfg.AuthProtocol),
			AuthenticationPassphrase: cfg.AuthPassword,
			PrivacyProtocol:          privProtocol(cfg.PrivProtocol),
			PrivacyPassphrase:        cfg.PrivPassword,
		}
		if cfg.ContextName != "" {
			snmp.ContextName = cfg.ContextName
		}
	} else {
		snmp.Version = gosnmp.Version2c
		snmp.Community = cfg.Community
	}

	return snmp
}

// =============================================================================
// SNMPv3 Protocol Helpers
// =============================================================================

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case constants.SecurityAuthNoPriv:
		return gosnmp.AuthNoPriv
	case constants.SecurityAuthPriv:
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(protocol) {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(protocol) {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}
