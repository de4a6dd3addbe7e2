package layered

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	defaultUnmarshal = json.Unmarshal
	defaultMarshal   = json.Marshal
)

// page is a run of consecutive entries of a stored record.
type page[K Key, V any] struct {
	Keys   []K `json:"k" msgpack:"k"`
	Values []V `json:"v" msgpack:"v"`
}

// manifest lists the pages of a stored record in order.
type manifest struct {
	Pages []string `json:"p" msgpack:"p"`
	Size  uint64   `json:"n" msgpack:"n"`
}

// Protobuf field numbers.
const (
	pageStringKeyField   protowire.Number = 1
	pageSignedKeyField   protowire.Number = 2
	pageUnsignedKeyField protowire.Number = 3
	pageValueField       protowire.Number = 4

	manifestPageField protowire.Number = 1
	manifestSizeField protowire.Number = 2
)

const checksumLen = 8

// frame appends an xxhash checksum of payload.
func frame(payload []byte) []byte {
	return binary.BigEndian.AppendUint64(payload, xxhash.Sum64(payload))
}

// unframe verifies and strips the checksum added by frame.
func unframe(blob []byte) ([]byte, error) {
	if len(blob) < checksumLen {
		return nil, corruptf("blob of %d bytes is shorter than its checksum", len(blob))
	}
	payload, sum := blob[:len(blob)-checksumLen], blob[len(blob)-checksumLen:]
	if binary.BigEndian.Uint64(sum) != xxhash.Sum64(payload) {
		return nil, corruptf("checksum mismatch")
	}
	return payload, nil
}

func encodePage[K Key, V any](format Format, p *page[K, V], marshal func(any) ([]byte, error)) ([]byte, error) {
	switch format {
	case JSON:
		return json.Marshal(p)
	case Msgpack:
		return msgpack.Marshal(p)
	case Protobuf:
		return marshalProtoPage(p, marshal)
	}
	return nil, fmt.Errorf("unknown format %v", format)
}

func decodePage[K Key, V any](format Format, b []byte, unmarshal func([]byte, any) error) (*page[K, V], error) {
	var p page[K, V]
	var err error
	switch format {
	case JSON:
		err = json.Unmarshal(b, &p)
	case Msgpack:
		err = msgpack.Unmarshal(b, &p)
	case Protobuf:
		err = unmarshalProtoPage(b, &p, unmarshal)
	default:
		return nil, fmt.Errorf("unknown format %v", format)
	}
	if err != nil {
		return nil, corruptf("page: %v", err)
	}
	if len(p.Keys) != len(p.Values) {
		return nil, corruptf("page has %d keys but %d values", len(p.Keys), len(p.Values))
	}
	return &p, nil
}

func encodeManifest(format Format, m *manifest) ([]byte, error) {
	switch format {
	case JSON:
		return json.Marshal(m)
	case Msgpack:
		return msgpack.Marshal(m)
	case Protobuf:
		var b []byte
		for _, link := range m.Pages {
			b = protowire.AppendTag(b, manifestPageField, protowire.BytesType)
			b = protowire.AppendString(b, link)
		}
		b = protowire.AppendTag(b, manifestSizeField, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Size)
		return b, nil
	}
	return nil, fmt.Errorf("unknown format %v", format)
}

func decodeManifest(format Format, b []byte) (*manifest, error) {
	var m manifest
	var err error
	switch format {
	case JSON:
		err = json.Unmarshal(b, &m)
	case Msgpack:
		err = msgpack.Unmarshal(b, &m)
	case Protobuf:
		err = unmarshalProtoManifest(b, &m)
	default:
		return nil, fmt.Errorf("unknown format %v", format)
	}
	if err != nil {
		return nil, corruptf("manifest: %v", err)
	}
	return &m, nil
}

func marshalProtoPage[K Key, V any](p *page[K, V], marshal func(any) ([]byte, error)) ([]byte, error) {
	var b []byte
	kind := kindOf[K]()
	for _, k := range p.Keys {
		switch kind {
		case stringKey:
			b = protowire.AppendTag(b, pageStringKeyField, protowire.BytesType)
			b = protowire.AppendString(b, keyString(k))
		case signedKey:
			b = protowire.AppendTag(b, pageSignedKeyField, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(keyInt(k)))
		case unsignedKey:
			b = protowire.AppendTag(b, pageUnsignedKeyField, protowire.VarintType)
			b = protowire.AppendVarint(b, keyUint(k))
		}
	}
	for i, v := range p.Values {
		body, err := marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value[%d]: %w", i, err)
		}
		b = protowire.AppendTag(b, pageValueField, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}
	return b, nil
}

func unmarshalProtoPage[K Key, V any](b []byte, p *page[K, V], unmarshal func([]byte, any) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		var k K
		var err error
		switch {
		case num == pageStringKeyField && typ == protowire.BytesType:
			var s string
			s, n = protowire.ConsumeString(b)
			if n >= 0 {
				k, err = keyFromString[K](s)
				p.Keys = append(p.Keys, k)
			}
		case num == pageSignedKeyField && typ == protowire.VarintType:
			var u uint64
			u, n = protowire.ConsumeVarint(b)
			if n >= 0 {
				k, err = keyFromInt[K](protowire.DecodeZigZag(u))
				p.Keys = append(p.Keys, k)
			}
		case num == pageUnsignedKeyField && typ == protowire.VarintType:
			var u uint64
			u, n = protowire.ConsumeVarint(b)
			if n >= 0 {
				k, err = keyFromUint[K](u)
				p.Keys = append(p.Keys, k)
			}
		case num == pageValueField && typ == protowire.BytesType:
			var body []byte
			body, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				var v V
				err = unmarshal(body, &v)
				p.Values = append(p.Values, v)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[n:]
	}
	return nil
}

func unmarshalProtoManifest(b []byte, m *manifest) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == manifestPageField && typ == protowire.BytesType:
			var s string
			s, n = protowire.ConsumeString(b)
			if n >= 0 {
				m.Pages = append(m.Pages, s)
			}
		case num == manifestSizeField && typ == protowire.VarintType:
			m.Size, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
