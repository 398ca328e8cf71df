package pm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand_CreateIsCanonical(t *testing.T) {
	cmd := Command{
		Kind:      CommandCreate,
		ModelID:   "m1",
		ModelType: TypeListSplice,
		Attributes: []Attribute{
			{Name: SpliceSource, Value: String("bean-1"), Qualifier: "m1"},
			{Name: SpliceFrom, Value: Int(0)},
			{Name: "0", Value: Null{}},
		},
	}

	got, err := EncodeCommand(cmd)
	require.NoError(t, err)

	want := `{"attributes":[{"name":"source","qualifier":"m1","value":"bean-1"},` +
		`{"name":"from","value":0},{"name":"0","value":null}],` +
		`"id":"m1","kind":"create","type":"LIST_SPLICE"}`
	assert.Equal(t, want, string(got))
}

func TestEncodeCommand_FloatKeepsFraction(t *testing.T) {
	cmd := ChangeCommand("m1", "ratio", Float(2), Float(0.25))
	got, err := EncodeCommand(cmd)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"m1","kind":"change","new":0.25,"old":2.0,"property":"ratio"}`, string(got))
}

func TestEncodeCommand_RejectsNaN(t *testing.T) {
	_, err := EncodeCommand(ChangeCommand("m1", "ratio", nil, Float(math.NaN())))
	assert.Error(t, err)
}

func TestEncodeCommand_NoHTMLEscaping(t *testing.T) {
	got, err := EncodeCommand(ChangeCommand("m1", "text", nil, String("<a&b>")))
	require.NoError(t, err)
	assert.Contains(t, string(got), `"<a&b>"`)
}

func TestEncodeCommand_NFCNormalizes(t *testing.T) {
	decomposed := "e\u0301"
	got, err := EncodeCommand(ChangeCommand("m1", "text", nil, String(decomposed)))
	require.NoError(t, err)
	assert.Contains(t, string(got), "\u00e9")
}

func TestEncodeCommand_Invalid(t *testing.T) {
	_, err := EncodeCommand(Command{Kind: CommandChange, ModelID: "m1"})
	assert.Error(t, err, "change without property")

	_, err = EncodeCommand(Command{Kind: "bogus", ModelID: "m1"})
	assert.Error(t, err)
}

func TestDecodeCommand_RoundTrip(t *testing.T) {
	cmds := []Command{
		CreateCommand(Snapshot{ID: "b1", Type: "Person", Attributes: []Attribute{
			NewAttribute("name", String("ann")),
			NewAttribute("age", Int(41)),
			NewAttribute("score", Float(9.5)),
			NewAttribute("active", Bool(true)),
			NewAttribute("nick", nil),
		}}),
		ChangeCommand("b1", "name", String("ann"), Null{}),
		DeleteCommand("b1", "Person"),
	}

	for _, cmd := range cmds {
		t.Run(string(cmd.Kind), func(t *testing.T) {
			data, err := EncodeCommand(cmd)
			require.NoError(t, err)

			got, err := DecodeCommand(data)
			require.NoError(t, err)
			assert.Equal(t, cmd, got)
		})
	}
}

func TestDecodeCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing kind", `{"id":"m1"}`},
		{"missing id", `{"kind":"delete"}`},
		{"nested value", `{"kind":"create","id":"m1","type":"T","attributes":[{"name":"a","value":[1]}]}`},
		{"bad attributes", `{"kind":"create","id":"m1","type":"T","attributes":{}}`},
		{"change without property", `{"kind":"change","id":"m1","old":null,"new":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestCompareKeysRFC8785(t *testing.T) {
	assert.Negative(t, compareKeysRFC8785("A", "a"))
	assert.Negative(t, compareKeysRFC8785("a", "aa"))
	assert.Zero(t, compareKeysRFC8785("x", "x"))
}

func TestUnescapeLineSeparators(t *testing.T) {
	got, err := marshalCanonicalString("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	got, err = marshalCanonicalString(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestCommandObject_MatchesEncode(t *testing.T) {
	cmd := ChangeCommand("m1", "count", Int(1), Int(2))
	obj, err := CommandObject(cmd)
	require.NoError(t, err)
	assert.Equal(t, Int(2), obj["new"])

	fromObj, err := MarshalCanonical(obj)
	require.NoError(t, err)
	encoded, err := EncodeCommand(cmd)
	require.NoError(t, err)
	assert.Equal(t, string(encoded), string(fromObj))
}

func TestMarshalCanonical_PlainScalars(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"b": true, "n": int64(3), "i": 4, "s": "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"b":true,"i":4,"n":3,"s":"x"}`, string(got))

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}
