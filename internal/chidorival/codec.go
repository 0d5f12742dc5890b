package chidorival

import "github.com/vmihailenco/msgpack/v5"

// wireValue is the invertible on-the-wire shadow of Value. Unlike
// canonical() (used only for Fingerprint/Equal, and lossy by design
// for Cell references), Encode/Decode must round-trip exactly, so
// every field that participates in any Kind is carried explicitly.
type wireValue struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	String string
	Array  []wireValue
	Object map[string]wireValue
	Set    []wireValue
	FnOp   string
	FnName string
	Stream string
}

func toWire(v Value) wireValue {
	w := wireValue{Kind: v.Kind}
	switch v.Kind {
	case KindBool:
		w.Bool = v.boolVal
	case KindInt:
		w.Int = v.intVal
	case KindFloat:
		w.Float = v.floatVal
	case KindString:
		w.String = v.stringVal
	case KindArray:
		w.Array = make([]wireValue, len(v.array))
		for i, e := range v.array {
			w.Array[i] = toWire(e)
		}
	case KindObject:
		w.Object = make(map[string]wireValue, len(v.object))
		for k, e := range v.object {
			w.Object[k] = toWire(e)
		}
	case KindSet:
		w.Set = make([]wireValue, len(v.set))
		for i, e := range v.set {
			w.Set[i] = toWire(e)
		}
	case KindFunctionPointer:
		w.FnOp = v.fn.OperationID
		w.FnName = v.fn.Name
	case KindStreamPointer:
		w.Stream = v.stream.ChronologyID
	case KindCell:
		// Cell descriptors are opaque to this package; callers that
		// need Cell values to survive Encode/Decode should serialize
		// them through the cell package and wrap the result as a
		// String or Object instead of KindCell.
	}
	return w
}

func fromWire(w wireValue) Value {
	switch w.Kind {
	case KindBool:
		return Bool(w.Bool)
	case KindInt:
		return Int(w.Int)
	case KindFloat:
		return Float(w.Float)
	case KindString:
		return String(w.String)
	case KindArray:
		items := make([]Value, len(w.Array))
		for i, e := range w.Array {
			items[i] = fromWire(e)
		}
		return Array(items...)
	case KindObject:
		fields := make(map[string]Value, len(w.Object))
		for k, e := range w.Object {
			fields[k] = fromWire(e)
		}
		return Object(fields)
	case KindSet:
		items := make([]Value, len(w.Set))
		for i, e := range w.Set {
			items[i] = fromWire(e)
		}
		return Set(items...)
	case KindFunctionPointer:
		return Func(FunctionPointer{OperationID: w.FnOp, Name: w.FnName})
	case KindStreamPointer:
		return Stream(StreamPointer{ChronologyID: w.Stream})
	default:
		return Null()
	}
}

// Encode produces an invertible byte encoding of v (Decode(Encode(v))
// is structurally equal to v, for every Kind except Cell — see
// toWire's comment on why Cell descriptors are opaque).
func Encode(v Value) ([]byte, error) {
	return msgpack.Marshal(toWire(v))
}

// Decode inverts Encode.
func Decode(data []byte) (Value, error) {
	var w wireValue
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Value{}, err
	}
	return fromWire(w), nil
}
