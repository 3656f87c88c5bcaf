package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesNullRoundTrip(t *testing.T) {
	var fc ForecastResult
	require.NoError(t, json.Unmarshal([]byte(`{"values":[1.5,null,3],"model_type":"prophet"}`), &fc))

	require.Len(t, fc.Values, 3)
	assert.Equal(t, 1.5, fc.Values[0])
	assert.True(t, math.IsNaN(fc.Values[1]), "null should decode as a gap")

	out, err := json.Marshal(Values{1, math.NaN(), math.Inf(1)})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,null,null]`, string(out))
}

func TestValuesAtOutOfRange(t *testing.T) {
	v := Values{1}
	assert.True(t, math.IsNaN(v.At(3)))
	assert.True(t, math.IsNaN(v.At(-1)))
	assert.Equal(t, 1.0, v.At(0))
}

func TestTargetKeyAndSignature(t *testing.T) {
	target := Target{ID: 7, UnitPrice: decimal.RequireFromString("12.5"), CostPrice: decimal.NewFromInt(8)}
	assert.Equal(t, "product:7", target.Key())
	assert.Equal(t, "12.5/8", target.PriceSignature())
	assert.True(t, target.UnitMargin().Equal(decimal.RequireFromString("4.5")))

	target.Type = TargetCategory
	assert.Equal(t, "category:7", target.Key())
}

func TestFinite(t *testing.T) {
	assert.Nil(t, Finite(math.NaN()))
	assert.Nil(t, Finite(math.Inf(-1)))
	require.NotNil(t, Finite(2))
	assert.Equal(t, 2.0, *Finite(2))
}
