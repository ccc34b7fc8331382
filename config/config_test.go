package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/transport"
)

func TestSerialDefaultsToTransportOptions(t *testing.T) {
	defaults := SerialDefaults{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    "1",
		Parity:      "none",
		FlowControl: "hardware",
		TimeoutMs:   250,
	}

	opts, err := defaults.ToTransportOptions("console", session.Read)
	require.NoError(t, err)

	assert.Equal(t, "console", opts.Tag)
	assert.Equal(t, session.Read, opts.InitialReadState)
	assert.Equal(t, 115200, opts.BaudRate)
	assert.Equal(t, 8, opts.DataBits)
	assert.Equal(t, transport.StopBits1, opts.StopBits)
	assert.Equal(t, transport.ParityNone, opts.Parity)
	assert.Equal(t, transport.FlowControlHardware, opts.FlowControl)
}

func TestSerialDefaultsToTransportOptionsInvalid(t *testing.T) {
	defaults := SerialDefaults{
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    "1",
		Parity:      "invalid",
		FlowControl: "none",
	}

	_, err := defaults.ToTransportOptions("", session.Read)
	require.Error(t, err)
}

func TestDefaultConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateUsesSerialDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Serial.Defaults.FlowControl = "broken"

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsMissingGRPCAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.GRPCAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsTLSWithoutCerts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TLS.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
}
