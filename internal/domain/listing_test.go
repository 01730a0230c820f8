package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexIntUnmarshal(t *testing.T) {
	t.Parallel()

	valid := map[string]int64{
		`42`:                  42,
		`"42"`:                42,
		`4.2e1`:               42,
		`"1768867200"`:        1768867200,
		`-7`:                  -7,
		`9223372036854775807`: 9223372036854775807,
	}
	for input, want := range valid {
		var f FlexInt
		require.NoError(t, json.Unmarshal([]byte(input), &f), input)
		assert.True(t, f.Valid, input)
		assert.Equal(t, want, f.Value, input)
	}

	for _, input := range []string{`null`, `""`, `"  "`} {
		var f FlexInt
		require.NoError(t, json.Unmarshal([]byte(input), &f), input)
		assert.False(t, f.Valid, input)
	}

	for _, input := range []string{`1.5`, `1e19`, `-1e19`, `9.3e18`, `"NaN"`, `"Inf"`, `"-Inf"`, `"abc"`} {
		var f FlexInt
		assert.Error(t, json.Unmarshal([]byte(input), &f), input)
	}
}
