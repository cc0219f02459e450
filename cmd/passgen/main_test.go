package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ghostpass/pkg/secrets"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "")
	t.Setenv("GHOSTPASS_ENV", "development")
	t.Setenv("GHOSTPASS_POLICY_FILE", "")
	t.Setenv("GHOSTPASS_STATION_KEYS_FILE", "")
}

func TestStationKeyPrintsVerifiableHash(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, stationKey(&out, []string{"--station", "door-1"}))

	lines := strings.Split(out.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	key := strings.TrimPrefix(lines[1], "# ")
	assert.True(t, strings.HasPrefix(key, secrets.KeyPrefix))

	var file struct {
		Stations map[string]string `yaml:"stations"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &file))
	require.Contains(t, file.Stations, "door-1")
	assert.NoError(t, secrets.Verify(key, file.Stations["door-1"]))
}

func TestStationKeyRequiresStation(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, stationKey(&out, nil))
}

func TestMintThenInspect(t *testing.T) {
	isolateEnv(t)
	subject := uuid.NewString()

	var out bytes.Buffer
	require.NoError(t, mint(&out, []string{"--env-file", "does-not-exist.env", "--subject", subject, "--payment"}))

	var minted map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &minted))
	assert.Equal(t, subject, minted["subject_id"])
	assert.Equal(t, "standard", minted["mode"])
	assert.Equal(t, false, minted["locked"])
	assert.Equal(t, true, minted["consumable"])
	payload, ok := minted["payload"].(string)
	require.True(t, ok)

	out.Reset()
	require.NoError(t, inspect(&out, []string{payload}))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, minted["nonce"], decoded["nonce"])
	assert.EqualValues(t, 32, decoded["signature_bytes"])
}

func TestMintBelowThresholdIsLocked(t *testing.T) {
	isolateEnv(t)

	var out bytes.Buffer
	require.NoError(t, mint(&out, []string{
		"--env-file", "does-not-exist.env",
		"--subject", uuid.NewString(),
		"--balance", "1.00",
		"--mode", "incognito_master",
	}))

	var minted map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &minted))
	assert.Equal(t, true, minted["locked"])
	assert.Equal(t, false, minted["consumable"])
}

func TestMintRejectsBadSubject(t *testing.T) {
	isolateEnv(t)
	var out bytes.Buffer
	assert.Error(t, mint(&out, []string{"--subject", "nope"}))
}

func TestDisplayPrintsFrames(t *testing.T) {
	isolateEnv(t)

	var out bytes.Buffer
	require.NoError(t, display(&out, []string{
		"--env-file", "does-not-exist.env",
		"--subject", uuid.NewString(),
		"--for", "200ms",
	}))

	var sawPayload bool
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &frame))
		if frame["payload"] != nil {
			sawPayload = true
		}
	}
	assert.True(t, sawPayload)
}

func TestInspectRejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, inspect(&out, []string{"GP1.garbage"}))
	assert.Error(t, inspect(&out, nil))
}
