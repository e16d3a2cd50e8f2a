package types

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// The marshaling here follows proto/tablekv.proto field for field. Messages
// are encoded with the proto3 wire format via protowire so the frames stay
// interoperable with any protoc-generated implementation of the schema.

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (v Value) append(b []byte) []byte {
	switch v.Kind {
	case KindString:
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, v.Str)
	case KindBinary:
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Bin)
	case KindInteger:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Int))
	case KindFloat:
		b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.Float))
	case KindBool:
		// oneof members are encoded even at their zero value
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, boolBit(v.Bool))
	}
	return b
}

// Marshal encodes the value as a standalone message; this is also the on-disk
// representation used by the badger engine.
func (v Value) Marshal() ([]byte, error) { return v.append(nil), nil }

// Unmarshal decodes a Value, resetting v first. Empty input yields KindNone.
func (v *Value) Unmarshal(data []byte) error {
	*v = Value{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "value tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "value string")
			}
			*v = StringValue(s)
			data = data[m:]
		case num == 2 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "value binary")
			}
			*v = BinaryValue(append([]byte(nil), raw...))
			data = data[m:]
		case num == 3 && typ == protowire.VarintType:
			u, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "value integer")
			}
			*v = IntegerValue(int64(u))
			data = data[m:]
		case num == 4 && typ == protowire.Fixed64Type:
			u, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "value float")
			}
			*v = FloatValue(math.Float64frombits(u))
			data = data[m:]
		case num == 5 && typ == protowire.VarintType:
			u, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "value bool")
			}
			*v = BoolValue(u != 0)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "value field")
			}
			data = data[m:]
		}
	}
	return nil
}

func (p KvPair) append(b []byte) []byte {
	if p.Key != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, p.Key)
	}
	if !p.Value.IsNone() {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Value.append(nil))
	}
	return b
}

func (p *KvPair) unmarshal(data []byte) error {
	*p = KvPair{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "pair tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "pair key")
			}
			p.Key = s
			data = data[m:]
		case num == 2 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "pair value")
			}
			if err := p.Value.Unmarshal(raw); err != nil {
				return err
			}
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "pair field")
			}
			data = data[m:]
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendStrings(b []byte, num protowire.Number, ss []string) []byte {
	for _, s := range ss {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendValues(b []byte, num protowire.Number, vs []Value) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, v.append(nil))
	}
	return b
}

func appendPairs(b []byte, num protowire.Number, ps []KvPair) []byte {
	for _, p := range ps {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, p.append(nil))
	}
	return b
}

// tableKeyBody covers Hget, Hdel and Hexist: {table=1, key=2}.
func tableKeyBody(table, key string) []byte {
	b := appendString(nil, 1, table)
	return appendString(b, 2, key)
}

// tableKeysBody covers Hmget, Hmdel and Hmexist: {table=1, keys=2}.
func tableKeysBody(table string, keys []string) []byte {
	b := appendString(nil, 1, table)
	return appendStrings(b, 2, keys)
}

type tableKey struct {
	table string
	key   string
}

func consumeTableKey(data []byte) (tableKey, error) {
	var tk tableKey
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return tk, errors.Wrap(protowire.ParseError(n), "command tag")
		}
		data = data[n:]
		if typ != protowire.BytesType || (num != 1 && num != 2) {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return tk, errors.Wrap(protowire.ParseError(m), "command field")
			}
			data = data[m:]
			continue
		}
		s, m := protowire.ConsumeString(data)
		if m < 0 {
			return tk, errors.Wrap(protowire.ParseError(m), "command string")
		}
		if num == 1 {
			tk.table = s
		} else {
			tk.key = s
		}
		data = data[m:]
	}
	return tk, nil
}

type tableKeys struct {
	table string
	keys  []string
}

func consumeTableKeys(data []byte) (tableKeys, error) {
	var tk tableKeys
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return tk, errors.Wrap(protowire.ParseError(n), "command tag")
		}
		data = data[n:]
		if typ != protowire.BytesType || (num != 1 && num != 2) {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return tk, errors.Wrap(protowire.ParseError(m), "command field")
			}
			data = data[m:]
			continue
		}
		s, m := protowire.ConsumeString(data)
		if m < 0 {
			return tk, errors.Wrap(protowire.ParseError(m), "command string")
		}
		if num == 1 {
			tk.table = s
		} else {
			tk.keys = append(tk.keys, s)
		}
		data = data[m:]
	}
	return tk, nil
}

func unmarshalHset(data []byte) (*Hset, error) {
	c := &Hset{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "hset tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "hset table")
			}
			c.Table = s
			data = data[m:]
		case num == 2 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "hset pair")
			}
			if err := c.Pair.unmarshal(raw); err != nil {
				return nil, err
			}
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "hset field")
			}
			data = data[m:]
		}
	}
	return c, nil
}

func unmarshalHmset(data []byte) (*Hmset, error) {
	c := &Hmset{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "hmset tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "hmset table")
			}
			c.Table = s
			data = data[m:]
		case num == 2 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "hmset pair")
			}
			var p KvPair
			if err := p.unmarshal(raw); err != nil {
				return nil, err
			}
			c.Pairs = append(c.Pairs, p)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "hmset field")
			}
			data = data[m:]
		}
	}
	return c, nil
}

func unmarshalUnsubscribe(data []byte) (*Unsubscribe, error) {
	c := &Unsubscribe{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "unsubscribe tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "unsubscribe topic")
			}
			c.Topic = s
			data = data[m:]
		case num == 2 && typ == protowire.VarintType:
			u, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "unsubscribe id")
			}
			c.ID = uint32(u)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "unsubscribe field")
			}
			data = data[m:]
		}
	}
	return c, nil
}

func unmarshalPublish(data []byte) (*Publish, error) {
	c := &Publish{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "publish tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "publish topic")
			}
			c.Topic = s
			data = data[m:]
		case num == 2 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "publish data")
			}
			var v Value
			if err := v.Unmarshal(raw); err != nil {
				return nil, err
			}
			c.Data = append(c.Data, v)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, errors.Wrap(protowire.ParseError(m), "publish field")
			}
			data = data[m:]
		}
	}
	return c, nil
}

// oneof field numbers per proto/tablekv.proto.
const (
	numHget        = 1
	numHgetall     = 2
	numHmget       = 3
	numHset        = 4
	numHmset       = 5
	numHdel        = 6
	numHmdel       = 7
	numHexist      = 8
	numHmexist     = 9
	numSubscribe   = 10
	numUnsubscribe = 11
	numPublish     = 12
)

// Marshal encodes the request. An empty oneof encodes to zero bytes.
func (r *CommandRequest) Marshal() ([]byte, error) {
	if r.Cmd == nil {
		return nil, nil
	}
	var num protowire.Number
	var body []byte
	switch c := r.Cmd.(type) {
	case *Hget:
		num, body = numHget, tableKeyBody(c.Table, c.Key)
	case *Hgetall:
		num, body = numHgetall, appendString(nil, 1, c.Table)
	case *Hmget:
		num, body = numHmget, tableKeysBody(c.Table, c.Keys)
	case *Hset:
		b := appendString(nil, 1, c.Table)
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		num, body = numHset, protowire.AppendBytes(b, c.Pair.append(nil))
	case *Hmset:
		b := appendString(nil, 1, c.Table)
		num, body = numHmset, appendPairs(b, 2, c.Pairs)
	case *Hdel:
		num, body = numHdel, tableKeyBody(c.Table, c.Key)
	case *Hmdel:
		num, body = numHmdel, tableKeysBody(c.Table, c.Keys)
	case *Hexist:
		num, body = numHexist, tableKeyBody(c.Table, c.Key)
	case *Hmexist:
		num, body = numHmexist, tableKeysBody(c.Table, c.Keys)
	case *Subscribe:
		num, body = numSubscribe, appendString(nil, 1, c.Topic)
	case *Unsubscribe:
		b := appendString(nil, 1, c.Topic)
		if c.ID != 0 {
			b = protowire.AppendTag(b, 2, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(c.ID))
		}
		num, body = numUnsubscribe, b
	case *Publish:
		b := appendString(nil, 1, c.Topic)
		num, body = numPublish, appendValues(b, 2, c.Data)
	default:
		return nil, errors.Errorf("unknown command type %T", r.Cmd)
	}
	b := protowire.AppendTag(nil, num, protowire.BytesType)
	return protowire.AppendBytes(b, body), nil
}

// Unmarshal decodes the request. An unrecognized variant number is an error;
// an absent oneof leaves Cmd nil.
func (r *CommandRequest) Unmarshal(data []byte) error {
	r.Cmd = nil
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "request tag")
		}
		data = data[n:]
		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "request field")
			}
			data = data[m:]
			continue
		}
		raw, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return errors.Wrap(protowire.ParseError(m), "request body")
		}
		data = data[m:]

		var err error
		switch num {
		case numHget:
			var tk tableKey
			if tk, err = consumeTableKey(raw); err == nil {
				r.Cmd = &Hget{Table: tk.table, Key: tk.key}
			}
		case numHgetall:
			var tk tableKey
			if tk, err = consumeTableKey(raw); err == nil {
				r.Cmd = &Hgetall{Table: tk.table}
			}
		case numHmget:
			var tk tableKeys
			if tk, err = consumeTableKeys(raw); err == nil {
				r.Cmd = &Hmget{Table: tk.table, Keys: tk.keys}
			}
		case numHset:
			r.Cmd, err = unmarshalHset(raw)
		case numHmset:
			var c *Hmset
			if c, err = unmarshalHmset(raw); err == nil {
				r.Cmd = c
			}
		case numHdel:
			var tk tableKey
			if tk, err = consumeTableKey(raw); err == nil {
				r.Cmd = &Hdel{Table: tk.table, Key: tk.key}
			}
		case numHmdel:
			var tk tableKeys
			if tk, err = consumeTableKeys(raw); err == nil {
				r.Cmd = &Hmdel{Table: tk.table, Keys: tk.keys}
			}
		case numHexist:
			var tk tableKey
			if tk, err = consumeTableKey(raw); err == nil {
				r.Cmd = &Hexist{Table: tk.table, Key: tk.key}
			}
		case numHmexist:
			var tk tableKeys
			if tk, err = consumeTableKeys(raw); err == nil {
				r.Cmd = &Hmexist{Table: tk.table, Keys: tk.keys}
			}
		case numSubscribe:
			var tk tableKey
			if tk, err = consumeTableKey(raw); err == nil {
				r.Cmd = &Subscribe{Topic: tk.table}
			}
		case numUnsubscribe:
			var c *Unsubscribe
			if c, err = unmarshalUnsubscribe(raw); err == nil {
				r.Cmd = c
			}
		case numPublish:
			var c *Publish
			if c, err = unmarshalPublish(raw); err == nil {
				r.Cmd = c
			}
		default:
			err = errors.Errorf("unknown request variant %d", num)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes the response per the schema: status=1, message=2,
// values=3, pairs=4.
func (r *CommandResponse) Marshal() ([]byte, error) {
	var b []byte
	if r.Status != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Status))
	}
	b = appendString(b, 2, r.Message)
	b = appendValues(b, 3, r.Values)
	b = appendPairs(b, 4, r.Pairs)
	return b, nil
}

// Unmarshal decodes a response, resetting r first.
func (r *CommandResponse) Unmarshal(data []byte) error {
	*r = CommandResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "response tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			u, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "response status")
			}
			r.Status = uint32(u)
			data = data[m:]
		case num == 2 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "response message")
			}
			r.Message = s
			data = data[m:]
		case num == 3 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "response value")
			}
			var v Value
			if err := v.Unmarshal(raw); err != nil {
				return err
			}
			r.Values = append(r.Values, v)
			data = data[m:]
		case num == 4 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "response pair")
			}
			var p KvPair
			if err := p.unmarshal(raw); err != nil {
				return err
			}
			r.Pairs = append(r.Pairs, p)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "response field")
			}
			data = data[m:]
		}
	}
	return nil
}
