package nasc

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type level int

func TestConvertValue(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  any
		target reflect.Type
		want   any
	}{
		{name: "assignable", value: "x", target: reflect.TypeOf(""), want: "x"},
		{name: "nil to zero", value: nil, target: reflect.TypeOf(0), want: 0},
		{name: "string to int", value: " 42 ", target: reflect.TypeOf(0), want: 42},
		{name: "hex string to int", value: "0x10", target: reflect.TypeOf(0), want: 16},
		{name: "string to uint8", value: "200", target: reflect.TypeOf(uint8(0)), want: uint8(200)},
		{name: "string to float", value: "2.5", target: reflect.TypeOf(0.0), want: 2.5},
		{name: "string to bool", value: "true", target: reflect.TypeOf(false), want: true},
		{name: "string to duration", value: "1m30s", target: reflect.TypeOf(time.Duration(0)), want: 90 * time.Second},
		{name: "string to time", value: "2024-03-01T12:00:00Z", target: reflect.TypeOf(time.Time{}), want: when},
		{name: "string to list", value: "a, b,c", target: reflect.TypeOf([]string{}), want: []string{"a", "b", "c"}},
		{name: "string to bytes", value: "hi", target: reflect.TypeOf([]byte{}), want: []byte("hi")},
		{name: "string to named int", value: "3", target: reflect.TypeOf(level(0)), want: level(3)},
		{name: "int to float", value: 3, target: reflect.TypeOf(0.0), want: 3.0},
		{name: "whole float to int", value: 4.0, target: reflect.TypeOf(int64(0)), want: int64(4)},
		{name: "int to uint", value: 7, target: reflect.TypeOf(uint(0)), want: uint(7)},
		{name: "int to string", value: 42, target: reflect.TypeOf(""), want: "42"},
		{name: "bool to string", value: true, target: reflect.TypeOf(""), want: "true"},
		{name: "any slice to ints", value: []any{"1", 2, 3.0}, target: reflect.TypeOf([]int{}), want: []int{1, 2, 3}},
		{name: "slice to array", value: []any{1, 2}, target: reflect.TypeOf([3]int{}), want: [3]int{1, 2, 0}},
		{name: "map conversion", value: map[string]any{"a": "1", "b": 2}, target: reflect.TypeOf(map[string]int{}), want: map[string]int{"a": 1, "b": 2}},
		{name: "value to pointer", value: Widget{X: 1}, target: widgetType, want: &Widget{X: 1}},
		{name: "implements interface", value: &ConsoleLogger{}, target: loggerType, want: &ConsoleLogger{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertValue(tt.value, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Interface())
		})
	}
}

func TestConvertValue_Errors(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		target reflect.Type
	}{
		{name: "not a number", value: "abc", target: reflect.TypeOf(0)},
		{name: "int overflow", value: 300, target: reflect.TypeOf(int8(0))},
		{name: "negative to uint", value: -1, target: reflect.TypeOf(uint(0))},
		{name: "fraction to int", value: 2.5, target: reflect.TypeOf(0)},
		{name: "bad duration", value: "soon", target: reflect.TypeOf(time.Duration(0))},
		{name: "bad element", value: []any{"1", "x"}, target: reflect.TypeOf([]int{})},
		{name: "array too small", value: []any{1, 2, 3}, target: reflect.TypeOf([2]int{})},
		{name: "struct to int", value: Widget{}, target: reflect.TypeOf(0)},
		{name: "not implemented", value: Widget{}, target: loggerType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := convertValue(tt.value, tt.target)
			var mismatch *TypeMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.target, mismatch.Target)
			assert.Equal(t, tt.value, mismatch.Value)
		})
	}
}
