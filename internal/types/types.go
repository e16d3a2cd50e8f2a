// Package types defines the wire messages of the tablekv protocol. The
// messages are hand-maintained proto3 structs; proto/tablekv.proto documents
// the schema and the field numbers the codec in this package must honor.
package types

// Response status codes, a small subset of HTTP semantics.
const (
	StatusOK            uint32 = 200
	StatusBadRequest    uint32 = 400
	StatusNotFound      uint32 = 404
	StatusInvalidInput  uint32 = 422
	StatusInternalError uint32 = 500
)

// ValueKind discriminates the Value union. KindNone is the unset oneof and
// stands for "no value"; it is distinct from an empty string or false.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindString
	KindBinary
	KindInteger
	KindFloat
	KindBool
)

// Value is a tagged union over the five storable variants. The zero Value has
// KindNone and marshals to an empty message.
type Value struct {
	Kind  ValueKind
	Str   string
	Bin   []byte
	Int   int64
	Float float64
	Bool  bool
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func BinaryValue(b []byte) Value  { return Value{Kind: KindBinary, Bin: b} }
func IntegerValue(i int64) Value  { return Value{Kind: KindInteger, Int: i} }
func FloatValue(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

// IsNone reports whether v is the unset placeholder.
func (v Value) IsNone() bool { return v.Kind == KindNone }

// KvPair is a key with its value.
type KvPair struct {
	Key   string
	Value Value
}

// Pair is shorthand for constructing a KvPair.
func Pair(key string, value Value) KvPair { return KvPair{Key: key, Value: value} }

// Command is one variant of the CommandRequest oneof.
type Command interface {
	commandName() string
}

type Hget struct {
	Table string
	Key   string
}

type Hgetall struct {
	Table string
}

type Hmget struct {
	Table string
	Keys  []string
}

type Hset struct {
	Table string
	Pair  KvPair
}

type Hmset struct {
	Table string
	Pairs []KvPair
}

type Hdel struct {
	Table string
	Key   string
}

type Hmdel struct {
	Table string
	Keys  []string
}

type Hexist struct {
	Table string
	Key   string
}

type Hmexist struct {
	Table string
	Keys  []string
}

type Subscribe struct {
	Topic string
}

type Unsubscribe struct {
	Topic string
	ID    uint32
}

type Publish struct {
	Topic string
	Data  []Value
}

func (*Hget) commandName() string        { return "hget" }
func (*Hgetall) commandName() string     { return "hgetall" }
func (*Hmget) commandName() string       { return "hmget" }
func (*Hset) commandName() string        { return "hset" }
func (*Hmset) commandName() string       { return "hmset" }
func (*Hdel) commandName() string        { return "hdel" }
func (*Hmdel) commandName() string       { return "hmdel" }
func (*Hexist) commandName() string      { return "hexist" }
func (*Hmexist) commandName() string     { return "hmexist" }
func (*Subscribe) commandName() string   { return "subscribe" }
func (*Unsubscribe) commandName() string { return "unsubscribe" }
func (*Publish) commandName() string     { return "publish" }

// CommandRequest wraps exactly one Command. A nil Cmd is the empty oneof and
// is rejected by the dispatcher with StatusInvalidInput.
type CommandRequest struct {
	Cmd Command
}

// CommandName returns the lower-case variant name, or "none" for an empty
// request. Used for log fields and metric labels.
func (r *CommandRequest) CommandName() string {
	if r == nil || r.Cmd == nil {
		return "none"
	}
	return r.Cmd.commandName()
}

// CommandResponse is the single response shape for every command.
type CommandResponse struct {
	Status  uint32
	Message string
	Values  []Value
	Pairs   []KvPair
}

// OK returns an empty success response.
func OK() *CommandResponse { return &CommandResponse{Status: StatusOK} }

// FromValue returns a success response carrying one value.
func FromValue(v Value) *CommandResponse {
	return &CommandResponse{Status: StatusOK, Values: []Value{v}}
}

// FromValues returns a success response carrying values in order.
func FromValues(vs []Value) *CommandResponse {
	return &CommandResponse{Status: StatusOK, Values: vs}
}

// FromPairs returns a success response carrying pairs.
func FromPairs(pairs []KvPair) *CommandResponse {
	return &CommandResponse{Status: StatusOK, Pairs: pairs}
}

// ErrorResponse returns a failure response with the given status and reason.
func ErrorResponse(status uint32, message string) *CommandResponse {
	return &CommandResponse{Status: status, Message: message}
}

// Request constructors mirror the command variants; clients and tests build
// requests through these.

func NewHget(table, key string) *CommandRequest {
	return &CommandRequest{Cmd: &Hget{Table: table, Key: key}}
}

func NewHgetall(table string) *CommandRequest {
	return &CommandRequest{Cmd: &Hgetall{Table: table}}
}

func NewHmget(table string, keys []string) *CommandRequest {
	return &CommandRequest{Cmd: &Hmget{Table: table, Keys: keys}}
}

func NewHset(table, key string, value Value) *CommandRequest {
	return &CommandRequest{Cmd: &Hset{Table: table, Pair: Pair(key, value)}}
}

func NewHmset(table string, pairs []KvPair) *CommandRequest {
	return &CommandRequest{Cmd: &Hmset{Table: table, Pairs: pairs}}
}

func NewHdel(table, key string) *CommandRequest {
	return &CommandRequest{Cmd: &Hdel{Table: table, Key: key}}
}

func NewHmdel(table string, keys []string) *CommandRequest {
	return &CommandRequest{Cmd: &Hmdel{Table: table, Keys: keys}}
}

func NewHexist(table, key string) *CommandRequest {
	return &CommandRequest{Cmd: &Hexist{Table: table, Key: key}}
}

func NewHmexist(table string, keys []string) *CommandRequest {
	return &CommandRequest{Cmd: &Hmexist{Table: table, Keys: keys}}
}

func NewSubscribe(topic string) *CommandRequest {
	return &CommandRequest{Cmd: &Subscribe{Topic: topic}}
}

func NewUnsubscribe(topic string, id uint32) *CommandRequest {
	return &CommandRequest{Cmd: &Unsubscribe{Topic: topic, ID: id}}
}

func NewPublish(topic string, data []Value) *CommandRequest {
	return &CommandRequest{Cmd: &Publish{Topic: topic, Data: data}}
}
