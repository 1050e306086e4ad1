package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"konduit.dev/node/channel"
)

func TestSnapshot_FormatParse(t *testing.T) {
	h := newHarness(t)
	other := h.consts
	other.Tag = channel.Tag("tag-2")
	chans := []channel.Channel{
		h.open(10),
		channel.Open(channel.ScriptHash{0x02}, other, &channel.KeyHash{0x09}, 20),
	}
	raw, err := FormatSnapshot(chans)
	require.NoError(t, err)

	withNoise := append([]byte("# channels at slot 42\n\n"), raw...)
	got, err := ParseSnapshot(withNoise)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range chans {
		require.Equal(t, chans[i].Keytag(), got[i].Keytag())
		require.Equal(t, chans[i].Amount, got[i].Amount)
	}
	require.NotNil(t, got[1].StakeCredential)
}

func TestSnapshot_ParseRejects(t *testing.T) {
	_, err := ParseSnapshot([]byte("zz\n"))
	require.ErrorContains(t, err, "line 1")

	_, err = ParseSnapshot([]byte("# ok\n00ff\n"))
	require.ErrorContains(t, err, "line 2")

	got, err := ParseSnapshot(nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFileLedger(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "ledger.snapshot")
	require.NoError(t, WriteSnapshot(path, []channel.Channel{h.open(77)}))

	l := FileLedger{Path: path}
	got, err := l.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint64(77), got[0].Amount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Channels(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, os.Remove(path))
	_, err = l.Channels(context.Background())
	require.ErrorContains(t, err, "ledger snapshot")
}
