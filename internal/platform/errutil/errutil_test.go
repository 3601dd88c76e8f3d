package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhub/pawhub/internal/platform/errutil"
)

func TestLogErrorWithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("AUTH_LOGIN_FAILED").
		With("operation", "login").
		Errorf("repository unavailable")

	errutil.LogError(logger, "login failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "login failed", entry["msg"])
	assert.Equal(t, "AUTH_LOGIN_FAILED", entry["code"])
}

func TestLogErrorWithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "send failed", errors.New("smtp timeout"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["error"], "smtp timeout")
	assert.NotContains(t, entry, "code")
}

func TestCode(t *testing.T) {
	assert.Equal(t, "X_FAILED", errutil.Code(oops.Code("X_FAILED").Errorf("x")))
	assert.Empty(t, errutil.Code(errors.New("plain")))
	errutil.AssertErrorCode(t, oops.Code("Y_FAILED").Wrap(errors.New("y")), "Y_FAILED")
}
