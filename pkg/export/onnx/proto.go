// Package onnx writes fitted preprocessing plans and linear models as ONNX
// ModelProto files. Messages are encoded directly on the protobuf wire
// format, so no generated ONNX bindings are needed.
package onnx

import (
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the onnx.proto messages written here.
const (
	modelIRVersion     protowire.Number = 1
	modelProducerName  protowire.Number = 2
	modelProducerVer   protowire.Number = 3
	modelDocString     protowire.Number = 6
	modelGraph         protowire.Number = 7
	modelOpsetImport   protowire.Number = 8
	modelMetadataProps protowire.Number = 14

	opsetDomain  protowire.Number = 1
	opsetVersion protowire.Number = 2

	entryKey   protowire.Number = 1
	entryValue protowire.Number = 2

	graphNode        protowire.Number = 1
	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	nodeInput     protowire.Number = 1
	nodeOutput    protowire.Number = 2
	nodeName      protowire.Number = 3
	nodeOpType    protowire.Number = 4
	nodeAttribute protowire.Number = 5
	nodeDomain    protowire.Number = 7

	attrName    protowire.Number = 1
	attrF       protowire.Number = 2
	attrI       protowire.Number = 3
	attrS       protowire.Number = 4
	attrFloats  protowire.Number = 7
	attrInts    protowire.Number = 8
	attrStrings protowire.Number = 9
	attrType    protowire.Number = 20

	tensorDims      protowire.Number = 1
	tensorDataType  protowire.Number = 2
	tensorFloatData protowire.Number = 4
	tensorName      protowire.Number = 8

	valueName protowire.Number = 1
	valueType protowire.Number = 2

	typeTensor  protowire.Number = 1
	tensorElem  protowire.Number = 1
	tensorShape protowire.Number = 2
	shapeDim    protowire.Number = 1
	dimValue    protowire.Number = 1
	dimParam    protowire.Number = 2
)

// AttributeProto.AttributeType values.
const (
	attrTypeFloat   = 1
	attrTypeInt     = 2
	attrTypeString  = 3
	attrTypeFloats  = 6
	attrTypeInts    = 7
	attrTypeStrings = 8
)

// ElemType is a TensorProto.DataType.
type ElemType int32

const (
	Float  ElemType = 1
	Int64  ElemType = 7
	String ElemType = 8
)

// message is a protobuf message under construction.
type message []byte

func (m message) str(num protowire.Number, s string) message {
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendString(m, s)
}

func (m message) sub(num protowire.Number, inner message) message {
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(m, inner)
}

func (m message) varint(num protowire.Number, v int64) message {
	m = protowire.AppendTag(m, num, protowire.VarintType)
	return protowire.AppendVarint(m, uint64(v))
}

func (m message) float(num protowire.Number, v float32) message {
	m = protowire.AppendTag(m, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(m, math.Float32bits(v))
}

// floats writes a packed repeated float field.
func (m message) floats(num protowire.Number, vs []float32) message {
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(m, packed)
}

// ints writes a packed repeated int64 field.
func (m message) ints(num protowire.Number, vs []int64) message {
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(m, packed)
}

// Attribute is an encoded AttributeProto.
type Attribute message

func FloatAttr(name string, v float64) Attribute {
	return Attribute(message(nil).str(attrName, name).float(attrF, float32(v)).varint(attrType, attrTypeFloat))
}

func IntAttr(name string, v int64) Attribute {
	return Attribute(message(nil).str(attrName, name).varint(attrI, v).varint(attrType, attrTypeInt))
}

func StringAttr(name, v string) Attribute {
	return Attribute(message(nil).str(attrName, name).str(attrS, v).varint(attrType, attrTypeString))
}

func FloatsAttr(name string, vs []float64) Attribute {
	return Attribute(message(nil).str(attrName, name).floats(attrFloats, float32s(vs)).varint(attrType, attrTypeFloats))
}

func IntsAttr(name string, vs []int64) Attribute {
	return Attribute(message(nil).str(attrName, name).ints(attrInts, vs).varint(attrType, attrTypeInts))
}

func StringsAttr(name string, vs []string) Attribute {
	m := message(nil).str(attrName, name)
	for _, v := range vs {
		m = m.str(attrStrings, v)
	}
	return Attribute(m.varint(attrType, attrTypeStrings))
}

func float32s(vs []float64) []float32 {
	out := make([]float32, len(vs))
	for i, v := range vs {
		out[i] = float32(v)
	}
	return out
}

// Graph collects the nodes, inputs and outputs of a GraphProto.
type Graph struct {
	Name         string
	nodes        []message
	inputs       []message
	outputs      []message
	initializers []message
	ops          []string
}

// Node appends a node computing outputs from inputs. Domain is "" for the
// default operator set.
func (g *Graph) Node(op, domain string, inputs, outputs []string, attrs ...Attribute) {
	m := message(nil)
	for _, in := range inputs {
		m = m.str(nodeInput, in)
	}
	for _, out := range outputs {
		m = m.str(nodeOutput, out)
	}
	m = m.str(nodeName, outputs[0]+"_"+op).str(nodeOpType, op)
	for _, a := range attrs {
		m = m.sub(nodeAttribute, message(a))
	}
	if domain != "" {
		m = m.str(nodeDomain, domain)
	}
	g.nodes = append(g.nodes, m)
	g.ops = append(g.ops, op)
}

// Input declares a graph input of the given element type and shape. A dim of
// -1 is symbolic ("N").
func (g *Graph) Input(name string, elem ElemType, dims ...int64) {
	g.inputs = append(g.inputs, valueInfo(name, elem, dims))
}

func (g *Graph) Output(name string, elem ElemType, dims ...int64) {
	g.outputs = append(g.outputs, valueInfo(name, elem, dims))
}

// Constant adds a one-dimensional float initializer.
func (g *Graph) Constant(name string, values ...float64) {
	t := message(nil).ints(tensorDims, []int64{int64(len(values))}).
		varint(tensorDataType, int64(Float)).
		floats(tensorFloatData, float32s(values)).
		str(tensorName, name)
	g.initializers = append(g.initializers, t)
}

func valueInfo(name string, elem ElemType, dims []int64) message {
	shape := message(nil)
	for _, d := range dims {
		dim := message(nil)
		if d < 0 {
			dim = dim.str(dimParam, "N")
		} else {
			dim = dim.varint(dimValue, d)
		}
		shape = shape.sub(shapeDim, dim)
	}
	tensor := message(nil).varint(tensorElem, int64(elem)).sub(tensorShape, shape)
	typ := message(nil).sub(typeTensor, tensor)
	return message(nil).str(valueName, name).sub(valueType, typ)
}

func (g *Graph) encode() message {
	m := message(nil)
	for _, n := range g.nodes {
		m = m.sub(graphNode, n)
	}
	m = m.str(graphName, g.Name)
	for _, t := range g.initializers {
		m = m.sub(graphInitializer, t)
	}
	for _, in := range g.inputs {
		m = m.sub(graphInput, in)
	}
	for _, out := range g.outputs {
		m = m.sub(graphOutput, out)
	}
	return m
}

// Operator set versions the converter targets.
const (
	irVersion    = 8
	defaultOpset = 13
	mlOpset      = 3
	MLDomain     = "ai.onnx.ml"
	producerName = "synaptica-automl"
	producerVer  = "1.0"
)

// Model is a ModelProto: one graph plus string metadata.
type Model struct {
	Graph    *Graph
	Doc      string
	Metadata map[string]string
}

// Marshal encodes the model. Metadata is written in key order so equal
// models encode identically.
func (m *Model) Marshal() []byte {
	out := message(nil).
		varint(modelIRVersion, irVersion).
		str(modelProducerName, producerName).
		str(modelProducerVer, producerVer)
	if m.Doc != "" {
		out = out.str(modelDocString, m.Doc)
	}
	out = out.sub(modelGraph, m.Graph.encode())
	out = out.sub(modelOpsetImport, message(nil).str(opsetDomain, "").varint(opsetVersion, defaultOpset))
	out = out.sub(modelOpsetImport, message(nil).str(opsetDomain, MLDomain).varint(opsetVersion, mlOpset))

	keys := make([]string, 0, len(m.Metadata))
	for k := range m.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = out.sub(modelMetadataProps, message(nil).str(entryKey, k).str(entryValue, m.Metadata[k]))
	}
	return out
}

// Ops lists the operator types in node order.
func (g *Graph) Ops() []string {
	return append([]string(nil), g.ops...)
}
