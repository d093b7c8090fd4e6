package common_test

import (
	"testing"

	common "github.com/ark-network/ark-client-go/common"
	"github.com/stretchr/testify/require"
)

func TestBIP68Sequence(t *testing.T) {
	t.Parallel()

	fixtures := []struct {
		name     string
		locktime common.RelativeLocktime
		expected uint32
	}{
		{
			"blocks",
			common.RelativeLocktime{Type: common.LocktimeTypeBlock, Value: 144},
			144,
		},
		{
			"one block",
			common.RelativeLocktime{Type: common.LocktimeTypeBlock, Value: 1},
			1,
		},
		{
			"512 seconds",
			common.RelativeLocktime{Type: common.LocktimeTypeSecond, Value: 512},
			(1 << 22) | 1,
		},
		{
			"1024 seconds",
			common.RelativeLocktime{Type: common.LocktimeTypeSecond, Value: 1024},
			(1 << 22) | 2,
		},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			sequence, err := common.BIP68Sequence(f.locktime)
			require.NoError(t, err)
			require.Equal(t, f.expected, sequence)
		})
	}
}

func TestBIP68SequenceErrors(t *testing.T) {
	t.Parallel()

	_, err := common.BIP68Sequence(common.RelativeLocktime{
		Type: common.LocktimeTypeSecond, Value: 511,
	})
	require.Error(t, err)

	_, err = common.BIP68Sequence(common.RelativeLocktime{
		Type: common.LocktimeTypeSecond, Value: common.SECONDS_MAX + 512,
	})
	require.Error(t, err)
}

func TestBIP68RoundTrip(t *testing.T) {
	t.Parallel()

	fixtures := []common.RelativeLocktime{
		{Type: common.LocktimeTypeBlock, Value: 16},
		{Type: common.LocktimeTypeBlock, Value: 144},
		{Type: common.LocktimeTypeBlock, Value: 65535},
		{Type: common.LocktimeTypeSecond, Value: 512},
		{Type: common.LocktimeTypeSecond, Value: 1024},
	}

	for _, locktime := range fixtures {
		sequence, err := common.BIP68Sequence(locktime)
		require.NoError(t, err)

		// minimal script number encoding of the sequence
		encoded := scriptNum(sequence)

		decoded, err := common.BIP68DecodeSequence(encoded)
		require.NoError(t, err)
		require.Equal(t, locktime.Type, decoded.Type)
		require.Equal(t, locktime.Value, decoded.Value)
	}
}

func TestAbsoluteLocktime(t *testing.T) {
	t.Parallel()

	require.False(t, common.AbsoluteLocktime(1000).IsSeconds())
	require.False(t, common.AbsoluteLocktime(499_999_999).IsSeconds())
	require.True(t, common.AbsoluteLocktime(500_000_000).IsSeconds())
}

func scriptNum(v uint32) []byte {
	if v == 0 {
		return []byte{}
	}

	buf := make([]byte, 0, 5)
	for n := int64(v); n > 0; n >>= 8 {
		buf = append(buf, byte(n&0xff))
	}
	if buf[len(buf)-1]&0x80 != 0 {
		buf = append(buf, 0)
	}
	return buf
}
