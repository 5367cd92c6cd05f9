package transport

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Gurux/gxcommon-go"
)

// ParamType is the value type of a connection parameter.
type ParamType int

// Parameter value types.
const (
	ParamString ParamType = iota
	ParamInt
	ParamChoice
)

func (t ParamType) String() string {
	switch t {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// Param declares one positional connection parameter of a transport kind.
//
// The declaration is also what connection UIs are generated from.
type Param struct {
	Name     string
	Type     ParamType
	Required bool
	Default  string
	Choices  []string
	// Secret marks values that UIs should mask, e.g. passwords.
	Secret bool
	// Parse converts and validates a raw token. When nil, the Type decides.
	Parse func(raw string) (any, error)
}

func (p Param) parse(raw string) (any, error) {
	if p.Parse != nil {
		return p.Parse(raw)
	}

	switch p.Type {
	case ParamInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}

		return v, nil
	case ParamChoice:
		for _, c := range p.Choices {
			if strings.EqualFold(c, raw) {
				return c, nil
			}
		}

		return nil, fmt.Errorf("%q is not one of %v", raw, p.Choices)
	default:
		return raw, nil
	}
}

// Schema is the ordered parameter list of a transport kind.
type Schema []Param

// Required returns the number of leading required parameters.
func (s Schema) Required() int {
	n := 0
	for _, p := range s {
		if p.Required {
			n++
		}
	}

	return n
}

// Parse converts positional tokens into Params. Missing optional tokens and empty
// optional tokens take their defaults.
func (s Schema) Parse(tokens []string) (Params, error) {
	if len(tokens) < s.Required() || len(tokens) > len(s) {
		return nil, fmt.Errorf("%w: expected %d to %d parameters, got %d",
			ErrInvalidParameters, s.Required(), len(s), len(tokens))
	}

	params := make(Params, len(s))
	for i, p := range s {
		raw := p.Default
		if i < len(tokens) {
			raw = strings.TrimSpace(tokens[i])
		}

		if raw == "" {
			if p.Required {
				return nil, fmt.Errorf("%w: parameter %q is required", ErrInvalidParameters, p.Name)
			}
			raw = p.Default
		}

		if raw == "" && p.Type == ParamString {
			params[p.Name] = ""
			continue
		}

		v, err := p.parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %w", ErrInvalidParameters, p.Name, err)
		}
		params[p.Name] = v
	}

	return params, nil
}

// Params holds parsed connection parameters keyed by Param.Name.
type Params map[string]any

// String returns the string parameter name, or "" if absent.
func (p Params) String(name string) string {
	v, ok := p[name].(string)
	if !ok {
		return ""
	}

	return v
}

// Int returns the integer parameter name, or 0 if absent.
func (p Params) Int(name string) int {
	v, ok := p[name].(int)
	if !ok {
		return 0
	}

	return v
}

// Kind binds a transport kind name to its parameter schema and constructor.
type Kind struct {
	Name   string
	Schema Schema
	// New builds a disconnected transport from parsed parameters.
	New func(params Params, opts ...Option) (Transport, error)
}

// SerialKind returns the "serial" kind: serial:<port>[:<baud>[:<flow>[:<parity>]]].
func SerialKind() Kind {
	return Kind{
		Name: KindSerial,
		Schema: Schema{
			{Name: "port", Type: ParamString, Required: true},
			{Name: "baudrate", Type: ParamInt, Default: strconv.Itoa(DefaultBaudRate), Parse: parseBaudRate},
			{Name: "flow", Type: ParamChoice, Default: FlowNone, Choices: []string{FlowNone, FlowRTSCTS, FlowDSRDTR}},
			{Name: "parity", Type: ParamChoice, Default: ParityNone.String(), Parse: parseParity,
				Choices: []string{"None", "Odd", "Even", "Mark", "Space"}},
		},
		New: func(params Params, opts ...Option) (Transport, error) {
			parity, _ := params["parity"].(Parity)
			opts = append([]Option{
				WithBaudRate(params.Int("baudrate")),
				WithFlowControl(params.String("flow")),
				WithParity(parity),
			}, opts...)

			return NewSerial(params.String("port"), opts...)
		},
	}
}

// TCPKind returns the "tcpip" kind: tcpip:<ip>[:<user>[:<password>[:<port>]]].
// An empty user connects without login.
func TCPKind() Kind {
	return Kind{
		Name: KindTCPIP,
		Schema: Schema{
			{Name: "ip", Type: ParamString, Required: true},
			{Name: "user", Type: ParamString},
			{Name: "password", Type: ParamString, Secret: true},
			{Name: "port", Type: ParamInt, Default: strconv.Itoa(DefaultTCPPort)},
		},
		New: func(params Params, opts ...Option) (Transport, error) {
			opts = append([]Option{
				WithCredentials(params.String("user"), params.String("password")),
			}, opts...)

			return NewTCP(params.String("ip"), params.Int("port"), opts...)
		},
	}
}

// SocketKind returns the "socket" kind: socket:<ip>:<port>, a raw TCP link without login.
func SocketKind() Kind {
	return Kind{
		Name: KindSocket,
		Schema: Schema{
			{Name: "ip", Type: ParamString, Required: true},
			{Name: "port", Type: ParamInt, Required: true},
		},
		New: func(params Params, opts ...Option) (Transport, error) {
			return NewSocket(params.String("ip"), params.Int("port"), opts...)
		},
	}
}

// FindKind returns the kind called name from kinds.
func FindKind(kinds []Kind, name string) (Kind, error) {
	idx := slices.IndexFunc(kinds, func(k Kind) bool { return strings.EqualFold(k.Name, name) })
	if idx < 0 {
		return Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}

	return kinds[idx], nil
}

// ParseParameterString parses a colon-separated parameter string such as
// "serial:/dev/ttyUSB0:115200:none" against the offered kinds.
//
// The first token selects the kind, the remaining tokens are its positional parameters.
func ParseParameterString(s string, kinds []Kind) (Kind, Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Kind{}, nil, fmt.Errorf("%w: empty parameter string", ErrInvalidParameters)
	}

	tokens := strings.Split(s, ":")
	kind, err := FindKind(kinds, tokens[0])
	if err != nil {
		return Kind{}, nil, err
	}

	params, err := kind.Schema.Parse(tokens[1:])
	if err != nil {
		return Kind{}, nil, fmt.Errorf("%s: %w", kind.Name, err)
	}

	return kind, params, nil
}

func parseBaudRate(raw string) (any, error) {
	br, err := gxcommon.BaudRateParse(raw)
	if err != nil {
		return nil, err
	}
	if int(br) <= 0 {
		return nil, fmt.Errorf("invalid baud rate %q", raw)
	}

	return int(br), nil
}

func parseParity(raw string) (any, error) {
	if raw == "" {
		return ParityNone, nil
	}

	name := strings.ToUpper(raw[:1]) + strings.ToLower(raw[1:])
	p, err := gxcommon.ParityParse(name)
	if err != nil {
		return nil, err
	}

	switch p {
	case gxcommon.ParityNone:
		return ParityNone, nil
	case gxcommon.ParityOdd:
		return ParityOdd, nil
	case gxcommon.ParityEven:
		return ParityEven, nil
	case gxcommon.ParityMark:
		return ParityMark, nil
	case gxcommon.ParitySpace:
		return ParitySpace, nil
	default:
		return nil, fmt.Errorf("unsupported parity %q", raw)
	}
}
