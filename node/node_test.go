package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libcoin/libcoin-sub003/config"
	"github.com/libcoin/libcoin-sub003/wire"
)

func testConfig() *config.NodeConfig {
	cfg := config.Default()
	cfg.Protocol.ListenAddress = "127.0.0.1:0"
	cfg.Store.Type = "memory"
	return cfg
}

func TestNewAssemblesCollaborators(t *testing.T) {
	genesis := &wire.Block{Header: wire.BlockHeader{Bits: 0x1d00ffff}}
	n, err := New(testConfig(), genesis, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NotNil(t, n.Manager())
	assert.NotNil(t, n.Chain())
	assert.EqualValues(t, 0, n.Chain().BestHeight())
}

func TestListenThenShutdownReleasesThePort(t *testing.T) {
	genesis := &wire.Block{Header: wire.BlockHeader{Bits: 0x1d00ffff}}
	n, err := New(testConfig(), genesis, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, n.Listen())
	n.Shutdown()
	// a second Shutdown must be a harmless no-op.
	n.Shutdown()
}

func TestUnknownStoreTypeFailsConstruction(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Type = "nonsense"
	genesis := &wire.Block{Header: wire.BlockHeader{Bits: 0x1d00ffff}}

	_, err := New(cfg, genesis, zaptest.NewLogger(t))
	assert.Error(t, err)
}
