package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "empty", in: []string{}, want: []string{}},
		{name: "trims each element", in: []string{" a ", "b  "}, want: []string{"a", "b"}},
		{name: "drops blanks", in: []string{"a", "", "   ", "b"}, want: []string{"a", "b"}},
		{name: "keeps first occurrence", in: []string{"a", "b", "a", "b"}, want: []string{"a", "b"}},
		{name: "duplicate only after trimming", in: []string{"a", " a"}, want: []string{"a"}},
		{name: "case sensitive", in: []string{"Read", "read"}, want: []string{"Read", "read"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.in))
		})
	}
}
