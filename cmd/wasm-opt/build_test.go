package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRuntimeTypeTag(t *testing.T) {
	tag, err := parseRuntimeTypeTag("706f7773")
	require.NoError(t, err)
	require.Equal(t, [4]byte{'p', 'o', 'w', 's'}, tag)
}

func TestParseRuntimeTypeTagRejectsWrongLength(t *testing.T) {
	_, err := parseRuntimeTypeTag("70")
	require.Error(t, err)
}

func TestParseRuntimeTypeTagRejectsNonHex(t *testing.T) {
	_, err := parseRuntimeTypeTag("zzzzzzzz")
	require.Error(t, err)
}

func TestParseRuntime(t *testing.T) {
	rt, err := parseRuntime("pwasm")
	require.NoError(t, err)
	require.Equal(t, "deploy", rt.Create)
	require.Equal(t, "ret", rt.Ret)

	rt, err = parseRuntime("Substrate")
	require.NoError(t, err)
	require.Equal(t, "ext_return", rt.Ret)

	_, err = parseRuntime("unknown-target")
	require.Error(t, err)
}
