package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]string{"status": "clear"}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "clear", got["status"])
	assert.Contains(t, buf.String(), "\n  \"status\"")
}

func TestWriteJSON_WriteErrorSurfaces(t *testing.T) {
	err := writeJSON(failingWriter{}, map[string]string{"status": "clear"})
	assert.ErrorContains(t, err, "encode json")
	assert.ErrorContains(t, err, "disk full")
}
