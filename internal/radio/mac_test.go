package radio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeMAC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "colon separated", in: "AA:BB:CC:DD:EE:FF", want: "aabbccddeeff"},
		{name: "dash separated", in: "aa-bb-cc-dd-ee-ff", want: "aabbccddeeff"},
		{name: "bare lowercase", in: "aabbccddeeff", want: "aabbccddeeff"},
		{name: "mixed case", in: "Aa:bB:cC:Dd:Ee:fF", want: "aabbccddeeff"},
		{name: "too short", in: "aabbccddee", wantErr: true},
		{name: "too long", in: "aabbccddeeff00", wantErr: true},
		{name: "non hex", in: "aabbccddeegg", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMAC(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMAC)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMACIdempotent(t *testing.T) {
	t.Parallel()

	once, err := NormalizeMAC("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	twice, err := NormalizeMAC(once)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}
