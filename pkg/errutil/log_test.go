// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/pkg/errutil"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TEST_ERROR").
		With("key", "value").
		Errorf("something failed")

	errutil.LogError(context.Background(), logger, "operation failed", err, "path", "/api/auth/sign-up")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "operation failed", entry["msg"])
	assert.Equal(t, "TEST_ERROR", entry["code"])
	assert.Equal(t, "/api/auth/sign-up", entry["path"])
	require.Contains(t, entry, "context")
	assert.Equal(t, "value", entry["context"].(map[string]any)["key"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "operation failed", errors.New("standard error"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestCode(t *testing.T) {
	t.Run("oops error", func(t *testing.T) {
		assert.Equal(t, "EMAIL_TAKEN", errutil.Code(oops.Code("EMAIL_TAKEN").Errorf("taken")))
	})

	t.Run("deepest code wins through uncoded wrappers", func(t *testing.T) {
		inner := oops.Code("USER_NOT_FOUND").Errorf("missing")
		assert.Equal(t, "USER_NOT_FOUND", errutil.Code(oops.With("op", "x").Wrap(inner)))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.Empty(t, errutil.Code(errors.New("plain")))
	})

	t.Run("uncoded oops error", func(t *testing.T) {
		assert.Empty(t, errutil.Code(oops.Errorf("no code")))
	})
}

func TestLogError_OmitsEmptyCode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "operation failed", oops.With("k", "v").Errorf("uncoded"))

	entry := decodeEntry(t, &buf)
	assert.NotContains(t, entry, "code")
	assert.Contains(t, entry, "context")
}
