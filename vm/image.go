package vm

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Bytecode images: deterministic CBOR serialization of compiled lambdas
// ---------------------------------------------------------------------------

// ImageMagic identifies a Passerine bytecode image.
const ImageMagic = "PSRN"

// ImageVersion is bumped whenever the wire layout changes.
const ImageVersion = 1

// cborEncMode uses canonical encoding so identical lambdas always
// serialize to identical bytes, which makes content hashes stable.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is the serialized envelope around a top-level lambda.
type Image struct {
	Magic   string      `cbor:"magic"`
	Version int         `cbor:"version"`
	Lambda  imageLambda `cbor:"lambda"`
}

type imageLambda struct {
	Name      string         `cbor:"name"`
	Code      []byte         `cbor:"code"`
	Constants []imageValue   `cbor:"constants"`
	Captured  []imageCapture `cbor:"captured"`
	Spans     []imageSpan    `cbor:"spans"`
	Arity     int            `cbor:"arity"`
	NumSlots  int            `cbor:"slots"`
}

type imageCapture struct {
	FromLocal bool `cbor:"local"`
	Index     int  `cbor:"index"`
}

type imageSpan struct {
	IP     int    `cbor:"ip"`
	Source string `cbor:"source"`
	Offset int    `cbor:"offset"`
	Length int    `cbor:"length"`
}

// imageValue is the wire form of a constant. Exactly one payload field
// is meaningful, selected by Kind. Only values the generator places in
// constant pools serialize; closures and fibers do not.
type imageValue struct {
	Kind   int                   `cbor:"kind"`
	Int    int64                 `cbor:"int,omitempty"`
	Real   float64               `cbor:"real,omitempty"`
	Bool   bool                  `cbor:"bool,omitempty"`
	Str    string                `cbor:"str,omitempty"`
	Name   string                `cbor:"name,omitempty"`
	Items  []imageValue          `cbor:"items,omitempty"`
	Fields map[string]imageValue `cbor:"fields,omitempty"`
	Inner  *imageValue           `cbor:"inner,omitempty"`
	Lambda *imageLambda          `cbor:"lambda,omitempty"`
}

// Wire kind discriminators. Kept separate from Kind so the runtime enum
// can change without invalidating existing images.
const (
	wireUnit = iota
	wireBoolean
	wireInteger
	wireReal
	wireString
	wireLabel
	wireTuple
	wireList
	wireRecord
	wireLambda
)

// EncodeImage serializes a top-level lambda to canonical CBOR.
func EncodeImage(l *Lambda) ([]byte, error) {
	wire, err := lambdaToWire(l)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(&Image{Magic: ImageMagic, Version: ImageVersion, Lambda: *wire})
}

// DecodeImage deserializes a bytecode image back into a lambda.
func DecodeImage(data []byte) (*Lambda, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("vm: not a bytecode image (magic %q)", img.Magic)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("vm: unsupported image version %d", img.Version)
	}
	return lambdaFromWire(&img.Lambda)
}

// ContentHash returns the sha256 digest of the lambda's canonical
// serialization, for content-addressed caching.
func ContentHash(l *Lambda) ([32]byte, error) {
	data, err := EncodeImage(l)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

func lambdaToWire(l *Lambda) (*imageLambda, error) {
	out := &imageLambda{
		Name:     l.Name,
		Code:     l.Code,
		Arity:    l.Arity,
		NumSlots: l.NumSlots,
	}
	for _, c := range l.Constants {
		wire, err := valueToWire(c)
		if err != nil {
			return nil, err
		}
		out.Constants = append(out.Constants, wire)
	}
	for _, site := range l.Captured {
		out.Captured = append(out.Captured, imageCapture{FromLocal: site.FromLocal, Index: site.Index})
	}
	for _, e := range l.Spans {
		out.Spans = append(out.Spans, imageSpan{IP: e.IP, Source: e.Span.Source, Offset: e.Span.Offset, Length: e.Span.Length})
	}
	return out, nil
}

func lambdaFromWire(w *imageLambda) (*Lambda, error) {
	out := &Lambda{
		Name:     w.Name,
		Code:     w.Code,
		Arity:    w.Arity,
		NumSlots: w.NumSlots,
	}
	for _, c := range w.Constants {
		v, err := valueFromWire(&c)
		if err != nil {
			return nil, err
		}
		out.Constants = append(out.Constants, v)
	}
	for _, site := range w.Captured {
		out.Captured = append(out.Captured, CaptureSite{FromLocal: site.FromLocal, Index: site.Index})
	}
	for _, e := range w.Spans {
		out.Spans = append(out.Spans, SpanEntry{IP: e.IP, Span: Span{Source: e.Source, Offset: e.Offset, Length: e.Length}})
	}
	return out, nil
}

func valueToWire(v Value) (imageValue, error) {
	switch t := v.(type) {
	case Unit:
		return imageValue{Kind: wireUnit}, nil
	case Boolean:
		return imageValue{Kind: wireBoolean, Bool: bool(t)}, nil
	case Integer:
		return imageValue{Kind: wireInteger, Int: int64(t)}, nil
	case Real:
		return imageValue{Kind: wireReal, Real: float64(t)}, nil
	case String:
		return imageValue{Kind: wireString, Str: string(t)}, nil
	case *Label:
		inner, err := valueToWire(t.Inner)
		if err != nil {
			return imageValue{}, err
		}
		return imageValue{Kind: wireLabel, Name: t.Name, Inner: &inner}, nil
	case Tuple:
		items, err := valuesToWire(t)
		if err != nil {
			return imageValue{}, err
		}
		return imageValue{Kind: wireTuple, Items: items}, nil
	case List:
		items, err := valuesToWire(t)
		if err != nil {
			return imageValue{}, err
		}
		return imageValue{Kind: wireList, Items: items}, nil
	case Record:
		fields := make(map[string]imageValue, len(t))
		for k, f := range t {
			wire, err := valueToWire(f)
			if err != nil {
				return imageValue{}, err
			}
			fields[k] = wire
		}
		return imageValue{Kind: wireRecord, Fields: fields}, nil
	case *Lambda:
		wire, err := lambdaToWire(t)
		if err != nil {
			return imageValue{}, err
		}
		return imageValue{Kind: wireLambda, Lambda: wire}, nil
	default:
		return imageValue{}, fmt.Errorf("vm: %s cannot appear in a bytecode image", v.Kind())
	}
}

func valuesToWire(in []Value) ([]imageValue, error) {
	out := make([]imageValue, len(in))
	for i, v := range in {
		wire, err := valueToWire(v)
		if err != nil {
			return nil, err
		}
		out[i] = wire
	}
	return out, nil
}

func valueFromWire(w *imageValue) (Value, error) {
	switch w.Kind {
	case wireUnit:
		return Unit{}, nil
	case wireBoolean:
		return Boolean(w.Bool), nil
	case wireInteger:
		return Integer(w.Int), nil
	case wireReal:
		return Real(w.Real), nil
	case wireString:
		return String(w.Str), nil
	case wireLabel:
		if w.Inner == nil {
			return nil, fmt.Errorf("vm: label %q image missing payload", w.Name)
		}
		inner, err := valueFromWire(w.Inner)
		if err != nil {
			return nil, err
		}
		return &Label{Name: w.Name, Inner: inner}, nil
	case wireTuple, wireList:
		items := make([]Value, len(w.Items))
		for i := range w.Items {
			v, err := valueFromWire(&w.Items[i])
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		if w.Kind == wireTuple {
			return Tuple(items), nil
		}
		return List(items), nil
	case wireRecord:
		rec := make(Record, len(w.Fields))
		for k := range w.Fields {
			field := w.Fields[k]
			v, err := valueFromWire(&field)
			if err != nil {
				return nil, err
			}
			rec[k] = v
		}
		return rec, nil
	case wireLambda:
		if w.Lambda == nil {
			return nil, fmt.Errorf("vm: lambda image missing body")
		}
		return lambdaFromWire(w.Lambda)
	default:
		return nil, fmt.Errorf("vm: unknown image value kind %d", w.Kind)
	}
}
