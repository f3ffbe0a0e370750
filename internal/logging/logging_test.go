package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel_ValidString(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
}

func TestParseLevel_InvalidDefaultsToInfo(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel("not-a-level"))
}

func TestForVenue_AttachesFields(t *testing.T) {
	base := New(Prod, zerolog.InfoLevel)
	scoped := ForVenue(base, "korea", "upbit", "socket")
	require.NotNil(t, scoped)
}
