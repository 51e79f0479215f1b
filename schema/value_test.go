package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"nil_int_pointer", (*int)(nil), nil},
		{"int_pointer", Int(255), int64(255)},
		{"int", 12, int64(12)},
		{"uint8", uint8(7), int64(7)},
		{"integral_float", float64(100), int64(100)},
		{"fraction", 1.5, 1.5},
		{"json_int", json.Number("42"), int64(42)},
		{"json_float", json.Number("0.25"), 0.25},
		{"string_stays_string", "255", "255"},
		{"bytes", []byte("now()"), "now()"},
		{"bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(Int(10), float64(10)))
	assert.True(t, Equal("x", "x"))
	assert.False(t, Equal("255", 255))
	assert.False(t, Equal(nil, ""))
	assert.False(t, Equal(nil, false))
	assert.False(t, Equal(Int(0), nil))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", FormatValue(nil))
	assert.Equal(t, "255", FormatValue(Int(255)))
	assert.Equal(t, "0.5", FormatValue(0.5))
	assert.Equal(t, "false", FormatValue(false))
	assert.Equal(t, "CURRENT_TIMESTAMP", FormatValue("CURRENT_TIMESTAMP"))
}

func TestSchemaTableNames(t *testing.T) {
	s := Schema{"users": NewTable(), "comments": NewTable(), "posts": NewTable()}
	assert.Equal(t, []string{"comments", "posts", "users"}, s.TableNames())
}

func TestSnapshotJSON(t *testing.T) {
	users := NewTable()
	users.Columns["name"] = Column{Type: "string", Length: Int(255), Nullable: false}
	users.Indexes["users_pkey"] = Index{Columns: []string{"id"}, IsUnique: true, IsPrimary: true}

	data, err := json.Marshal(Snapshot{Name: "s1", Database: "sqlite", Schema: Schema{"users": users}})
	assert.NoError(t, err)

	var got Snapshot
	assert.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "s1", got.Name)
	assert.Equal(t, 255, *got.Schema["users"].Columns["name"].Length)
	assert.Nil(t, got.Schema["users"].Columns["name"].Precision)
	assert.True(t, got.Schema["users"].Indexes["users_pkey"].IsPrimary)
}

func TestFormatValueList(t *testing.T) {
	assert.Equal(t, "(email, name)", FormatValue([]string{"email", "name"}))
	assert.Equal(t, "()", FormatValue([]string{}))
}
