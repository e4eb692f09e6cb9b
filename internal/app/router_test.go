package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOrigins(t *testing.T) {
	require.Equal(t, []string{"*"}, ParseOrigins(""))
	require.Equal(t, []string{"*"}, ParseOrigins("*"))
	require.Equal(t, []string{"*"}, ParseOrigins(" , ,"))
	require.Equal(t, []string{"https://a.example", "https://b.example"},
		ParseOrigins(" https://a.example, https://b.example "))
}
