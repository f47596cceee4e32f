package onnx

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Summary is what Inspect reads back from an encoded model.
type Summary struct {
	IRVersion int64
	Producer  string
	Opsets    map[string]int64
	Inputs    []Value
	Outputs   []Value
	Ops       []string
	Metadata  map[string]string
}

type Value struct {
	Name string
	Elem ElemType
}

// Inspect decodes the parts of a ModelProto needed to check an export: graph
// inputs and outputs, operator types, opsets and metadata.
func Inspect(data []byte) (*Summary, error) {
	s := &Summary{Opsets: map[string]int64{}, Metadata: map[string]string{}}
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch num {
		case modelIRVersion:
			s.IRVersion = int64(n)
		case modelProducerName:
			s.Producer = string(v)
		case modelGraph:
			return s.graph(v)
		case modelOpsetImport:
			var domain string
			var version int64
			err := walk(v, func(num protowire.Number, _ protowire.Type, v []byte, n uint64) error {
				switch num {
				case opsetDomain:
					domain = string(v)
				case opsetVersion:
					version = int64(n)
				}
				return nil
			})
			s.Opsets[domain] = version
			return err
		case modelMetadataProps:
			var key, value string
			err := walk(v, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
				switch num {
				case entryKey:
					key = string(v)
				case entryValue:
					value = string(v)
				}
				return nil
			})
			s.Metadata[key] = value
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Summary) graph(data []byte) error {
	return walk(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case graphNode:
			return walk(v, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
				if num == nodeOpType {
					s.Ops = append(s.Ops, string(v))
				}
				return nil
			})
		case graphInput, graphOutput:
			val, err := readValue(v)
			if err != nil {
				return err
			}
			if num == graphInput {
				s.Inputs = append(s.Inputs, val)
			} else {
				s.Outputs = append(s.Outputs, val)
			}
		}
		return nil
	})
}

func readValue(data []byte) (Value, error) {
	var val Value
	err := walk(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case valueName:
			val.Name = string(v)
		case valueType:
			return walk(v, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
				if num != typeTensor {
					return nil
				}
				return walk(v, func(num protowire.Number, _ protowire.Type, _ []byte, n uint64) error {
					if num == tensorElem {
						val.Elem = ElemType(n)
					}
					return nil
				})
			})
		}
		return nil
	})
	return val, err
}

// walk calls fn for every field of a message. Length-delimited fields pass
// their payload in v, varints their value in n.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return fmt.Errorf("onnx: %w", protowire.ParseError(tagLen))
		}
		data = data[tagLen:]

		var (
			v   []byte
			n   uint64
			adv int
		)
		switch typ {
		case protowire.BytesType:
			v, adv = protowire.ConsumeBytes(data)
		case protowire.VarintType:
			n, adv = protowire.ConsumeVarint(data)
		default:
			adv = protowire.ConsumeFieldValue(num, typ, data)
		}
		if adv < 0 {
			return fmt.Errorf("onnx: field %d: %w", num, protowire.ParseError(adv))
		}
		data = data[adv:]
		if err := fn(num, typ, v, n); err != nil {
			return err
		}
	}
	return nil
}
