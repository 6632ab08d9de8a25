package bencode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEncodeString(t *testing.T) {
	require.Equal(t, []byte("4:spam"), Encode(Bytes([]byte("spam"))))
}

func TestEncodeInt(t *testing.T) {
	require.Equal(t, []byte("i42e"), Encode(Int64(42)))
	require.Equal(t, []byte("i-7e"), Encode(Int64(-7)))
	require.Equal(t, []byte("i0e"), Encode(Int64(0)))
}

func TestEncodeList(t *testing.T) {
	v := List(Bytes([]byte("spam")), Bytes([]byte("eggs")))
	require.Equal(t, []byte("l4:spam4:eggse"), Encode(v))
}

func TestEncodeDictSortsKeys(t *testing.T) {
	v := Dict(map[string]Value{
		"b": Int64(1),
		"a": Int64(2),
	})
	require.Equal(t, []byte("d1:ai2e1:bi1ee"), Encode(v))
}

func TestDecodeRoundTripCanonical(t *testing.T) {
	in := []byte("d3:cow3:moo4:spam4:eggse")
	v, err := Decode(in)
	require.NoError(t, err)
	require.Equal(t, in, Encode(v))
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	v := Dict(map[string]Value{
		"announce": Bytes([]byte("http://tracker.example/announce")),
		"info": Dict(map[string]Value{
			"name":         Bytes([]byte("file.bin")),
			"length":       Int64(1024),
			"piece length": Int64(512),
			"pieces":       Bytes(make([]byte, 40)),
		}),
		"list": List(Int64(1), Int64(2), Int64(3)),
	})
	encoded := Encode(v)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	if diff := cmp.Diff(v, decoded); diff != "" {
		t.Errorf("decode(encode(v)) mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMalformedInputs(t *testing.T) {
	cases := map[string]string{
		"truncated integer":    "i42",
		"non canonical int":    "i042e",
		"negative zero":        "i-0e",
		"unknown prefix":       "x4:spam",
		"string too short":     "10:short",
		"unterminated list":    "l4:spam",
		"unterminated dict":    "d3:key4:spam",
		"non string dict key":  "di1e4:spame",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			require.Error(t, err)
		})
	}
}

func TestGetOnNonDict(t *testing.T) {
	_, ok := Int64(1).Get("x")
	require.False(t, ok)
}

func TestGetMissingKey(t *testing.T) {
	_, ok := Dict(map[string]Value{"a": Int64(1)}).Get("b")
	require.False(t, ok)
}
