package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_String(t *testing.T) {
	p := Params{"query": " in:inbox ", "count": 3.0, "empty": ""}

	s, err := p.String("query")
	require.NoError(t, err)
	assert.Equal(t, "in:inbox", s)

	s, err = p.String("missing")
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = p.String("count")
	assert.EqualError(t, err, "count must be a string")

	_, err = p.RequiredString("empty")
	assert.EqualError(t, err, "empty is required")

	s, err = p.RequiredString("query")
	require.NoError(t, err)
	assert.Equal(t, "in:inbox", s)
}

func TestParams_Int(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		wantErr bool
	}{
		{"absent", nil, 10, false},
		{"json number", 25.0, 25, false},
		{"int", 7, 7, false},
		{"int64", int64(8), 8, false},
		{"numeric string", "12", 12, false},
		{"blank string", " ", 10, false},
		{"fraction", 2.5, 0, true},
		{"word", "ten", 0, true},
		{"bool", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Params{}
			if tt.value != nil {
				p["n"] = tt.value
			}
			got, err := p.Int("n", 10)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParams_StringList(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    []string
		wantErr bool
	}{
		{"absent", nil, nil, false},
		{"comma separated", "a@example.com, b@example.com,", []string{"a@example.com", "b@example.com"}, false},
		{"array", []any{"a@example.com", " b@example.com "}, []string{"a@example.com", "b@example.com"}, false},
		{"string slice", []string{"a", ""}, []string{"a"}, false},
		{"only blanks", " , ", nil, false},
		{"array with number", []any{"a", 1.0}, nil, true},
		{"number", 1.0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Params{}
			if tt.value != nil {
				p["to"] = tt.value
			}
			got, err := p.StringList("to")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
