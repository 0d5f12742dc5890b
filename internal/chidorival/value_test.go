package chidorival

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Int(42),
		Float(3.14),
		String("hello"),
		Array(Int(1), Int(2), String("three")),
		Object(map[string]Value{"a": Int(1), "b": String("two")}),
		Set(Int(1), Int(2), Int(1)),
		Func(FunctionPointer{OperationID: "op-1", Name: "add"}),
		Stream(StreamPointer{ChronologyID: "chron-1"}),
	}

	for _, original := range cases {
		data, err := Encode(original)
		if err != nil {
			t.Fatalf("Encode(%v) error: %v", original, err)
		}
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if !original.Equal(decoded) {
			t.Fatalf("round-trip mismatch: original=%+v decoded=%+v", original, decoded)
		}
	}
}

func TestSetDeduplicatesAndOrdersDeterministically(t *testing.T) {
	a := Set(Int(3), Int(1), Int(2), Int(1))
	b := Set(Int(1), Int(2), Int(3))

	membersA, _ := a.AsSet()
	if len(membersA) != 3 {
		t.Fatalf("expected 3 deduplicated members, got %d", len(membersA))
	}
	if !a.Equal(b) {
		t.Fatalf("expected sets with same members in different construction order to be equal")
	}
}

func TestEqualDistinguishesKinds(t *testing.T) {
	if Int(0).Equal(Bool(false)) {
		t.Fatalf("Int(0) must not equal Bool(false)")
	}
	if String("").Equal(Null()) {
		t.Fatalf("empty string must not equal Null")
	}
}

func TestObjectFingerprintIndependentOfInsertionOrder(t *testing.T) {
	a := Object(map[string]Value{"x": Int(1), "y": Int(2)})
	b := Object(map[string]Value{"y": Int(2), "x": Int(1)})
	if !a.Equal(b) {
		t.Fatalf("object fingerprints must be independent of map iteration order")
	}
}
