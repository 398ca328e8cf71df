package convert

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pmsync/internal/pm"
)

type fakeBean struct{ id string }

func (b *fakeBean) ModelID() string { return b.id }

func TestRoundTrip(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterEnum("Color", "RED", "GREEN"))

	when := time.Date(2024, 3, 9, 17, 4, 5, 123_000_000, time.UTC)

	tests := []struct {
		vt     ValueType
		values []any
	}{
		{String, []any{"", "hello", "ünïcödé", nil}},
		{Byte, []any{int8(0), int8(math.MinInt8), int8(math.MaxInt8), nil}},
		{Short, []any{int16(-300), int16(math.MaxInt16), nil}},
		{Int, []any{int32(42), int32(math.MinInt32), nil}},
		{Long, []any{int64(math.MaxInt64), int64(-1), nil}},
		{Float, []any{float32(1.5), float32(-0.25), nil}},
		{Double, []any{3.141592653589793, 0.0, nil}},
		{Bool, []any{true, false, nil}},
		{Date, []any{when, nil}},
		{Calendar, []any{when, nil}},
		{Enum("Color"), []any{"RED", "GREEN", nil}},
		{Bean, []any{Reference("bean-1"), nil}},
	}

	for _, tt := range tests {
		t.Run(string(tt.vt), func(t *testing.T) {
			c, err := r.Resolve(tt.vt)
			require.NoError(t, err)

			for _, v := range tt.values {
				wire, err := c.ToWire(v)
				require.NoError(t, err, "ToWire(%v)", v)

				got, err := c.FromWire(wire)
				require.NoError(t, err, "FromWire(%v)", wire)
				assert.Equal(t, v, got)
			}
		})
	}
}

func TestNullIsExplicit(t *testing.T) {
	c, err := NewRegistry().Resolve(String)
	require.NoError(t, err)

	wire, err := c.ToWire(nil)
	require.NoError(t, err)
	assert.Equal(t, pm.Null{}, wire)

	wire, err = c.ToWire("")
	require.NoError(t, err)
	assert.Equal(t, pm.String(""), wire, "empty string is not null")
}

func TestTags(t *testing.T) {
	r := NewRegistry()
	want := map[ValueType]FieldType{
		String:   TagString,
		Byte:     TagByte,
		Short:    TagShort,
		Int:      TagInteger,
		Long:     TagLong,
		Float:    TagFloat,
		Double:   TagDouble,
		Bool:     TagBoolean,
		Date:     TagDate,
		Calendar: TagCalendar,
		Bean:     TagBean,
	}
	for vt, tag := range want {
		c, err := r.Resolve(vt)
		require.NoError(t, err)
		assert.Equal(t, tag, c.Tag(), vt)
	}
}

func TestResolve_Unsupported(t *testing.T) {
	_, err := NewRegistry().Resolve("complex128")
	require.Error(t, err)
	assert.True(t, pm.IsUnsupportedTypeError(err))
}

func TestCalendar_NormalizesToUTC(t *testing.T) {
	c, err := NewRegistry().Resolve(Calendar)
	require.NoError(t, err)

	zone := time.FixedZone("CET", 3600)
	local := time.Date(2024, 1, 1, 10, 0, 0, 0, zone)

	wire, err := c.ToWire(local)
	require.NoError(t, err)
	assert.Equal(t, pm.String("2024-01-01T09:00:00.000Z"), wire)

	back, err := c.FromWire(wire)
	require.NoError(t, err)
	assert.True(t, local.Equal(back.(time.Time)))
	assert.Equal(t, time.UTC, back.(time.Time).Location())
}

func TestDate_TruncatesToMillis(t *testing.T) {
	c, err := NewRegistry().Resolve(Date)
	require.NoError(t, err)

	wire, err := c.ToWire(time.Date(2024, 1, 1, 0, 0, 0, 999_999, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, pm.String("2024-01-01T00:00:00.000Z"), wire)
}

func TestIntRanges(t *testing.T) {
	r := NewRegistry()
	c, err := r.Resolve(Byte)
	require.NoError(t, err)

	_, err = c.ToWire(300)
	assert.Error(t, err)

	_, err = c.FromWire(pm.Int(300))
	assert.Error(t, err)

	v, err := c.ToWire(12)
	require.NoError(t, err)
	assert.Equal(t, pm.Int(12), v, "plain int accepted when in range")
}

func TestTypeMismatch(t *testing.T) {
	r := NewRegistry()
	c, err := r.Resolve(Bool)
	require.NoError(t, err)

	_, err = c.ToWire("yes")
	require.Error(t, err)
	assert.Equal(t, pm.ErrCodeTypeMismatch, pm.CodeOf(err))

	_, err = c.FromWire(pm.Int(1))
	assert.Error(t, err)
}

func TestFloat_RejectsNonFinite(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		vt   ValueType
		v    any
	}{
		{"double NaN", Double, math.NaN()},
		{"double +Inf", Double, math.Inf(1)},
		{"double -Inf", Double, math.Inf(-1)},
		{"float NaN", Float, float32(math.NaN())},
		{"float +Inf", Float, float32(math.Inf(1))},
		{"float overflow", Float, math.MaxFloat64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Resolve(tt.vt)
			require.NoError(t, err)

			_, err = c.ToWire(tt.v)
			require.Error(t, err)
			assert.Equal(t, pm.ErrCodeTypeMismatch, pm.CodeOf(err))
		})
	}
}

func TestFloat_AcceptsIntegralWireInt(t *testing.T) {
	c, err := NewRegistry().Resolve(Double)
	require.NoError(t, err)

	v, err := c.FromWire(pm.Int(2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestEnum(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterEnum("Color", "RED", "GREEN"))

	c, err := r.Resolve(Enum("Color"))
	require.NoError(t, err)
	assert.Equal(t, TagEnum, c.Tag())

	_, err = c.ToWire("BLUE")
	assert.Error(t, err)

	_, err = c.FromWire(pm.String("BLUE"))
	assert.Error(t, err)

	assert.Error(t, r.RegisterEnum("Color", "RED"), "duplicate registration")
	assert.Error(t, r.RegisterEnum("Empty"))
	assert.Error(t, r.RegisterEnum("Dup", "A", "A"))
	assert.True(t, Enum("Color").IsEnum())
	assert.False(t, String.IsEnum())
}

func TestBean_AcceptsIdentified(t *testing.T) {
	c, err := NewRegistry().Resolve(Bean)
	require.NoError(t, err)

	wire, err := c.ToWire(&fakeBean{id: "b-7"})
	require.NoError(t, err)
	assert.Equal(t, pm.String("b-7"), wire)

	var nilBean *fakeBean
	wire, err = c.ToWire(nilBean)
	require.NoError(t, err)
	assert.Equal(t, pm.Null{}, wire)

	back, err := c.FromWire(wire)
	require.NoError(t, err)
	assert.Nil(t, back)
}

func TestFreeze(t *testing.T) {
	r := NewRegistry()
	r.Freeze()

	err := r.RegisterEnum("Late", "A")
	assert.Error(t, err)
	assert.Contains(t, r.Types(), String)
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
