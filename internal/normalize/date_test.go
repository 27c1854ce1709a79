package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"15/08/1990", "1990-08-15"},
		{"15-08-1990", "1990-08-15"},
		{"5/8/1990", "1990-08-05"},
		{"1990-08-15", "1990-08-15"},
		{" 15/08/1990 ", "1990-08-15"},
		{"31/02/1990", "31/02/1990"},
		{"Aug 15 1990", "Aug 15 1990"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertDate(tt.in))
		})
	}
}

func TestConvertDate_Idempotent(t *testing.T) {
	once := ConvertDate("15/08/1990")
	assert.Equal(t, once, ConvertDate(once))
	assert.True(t, IsISODate(once))
}
