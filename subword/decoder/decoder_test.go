package decoder

import (
	"encoding/json"
	"testing"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordPiece(t *testing.T) {
	tests := []struct {
		name    string
		cleanup bool
		tokens  []string
		want    string
	}{
		{"JoinsPieces", true, []string{"un", "##want", "##ed", "runn", "##ing"}, "unwanted running"},
		{"Punctuation", true, []string{"hello", ",", "world", "!"}, "hello, world!"},
		{"Contraction", true, []string{"it", "'s", "ok"}, "it's ok"},
		{"NoCleanup", false, []string{"hello", ",", "world"}, "hello , world"},
		{"Empty", true, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &WordPiece{Prefix: "##", Cleanup: tt.cleanup}
			got, err := d.Decode(tt.tokens)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetaspace(t *testing.T) {
	tests := []struct {
		name   string
		prefix bool
		tokens []string
		want   string
	}{
		{"PrefixSpace", true, []string{"▁Hey", "▁fri", "end"}, "Hey friend"},
		{"NoPrefixSpace", false, []string{"▁Hey", "▁you"}, " Hey you"},
		{"GlyphInsideToken", true, []string{"▁a▁b"}, "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMetaspace(tt.prefix).Decode(tt.tokens)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBPE(t *testing.T) {
	got, err := (&BPE{}).Decode([]string{"my</w>", "fri", "end</w>"})
	require.NoError(t, err)
	assert.Equal(t, "my friend", got)

	got, err = (&BPE{Suffix: "@"}).Decode([]string{"a@", "b@"})
	require.NoError(t, err)
	assert.Equal(t, "a b", got)
}

func TestJSON(t *testing.T) {
	decoders := []struct {
		name string
		dec  Decoder
	}{
		{"WordPiece", NewWordPiece()},
		{"Metaspace", NewMetaspace(true)},
		{"BPE", &BPE{Suffix: "</w>"}},
	}
	for _, tt := range decoders {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.dec)
			require.NoError(t, err)
			got, err := FromJSON(data)
			require.NoError(t, err)
			assert.Equal(t, tt.dec, got)
		})
	}

	t.Run("BadReplacement", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"type":"Metaspace","replacement":"ab"}`))
		assert.ErrorIs(t, err, common.ErrConfiguration)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"type":"ByteLevel"}`))
		assert.ErrorIs(t, err, common.ErrConfiguration)
	})

	t.Run("Null", func(t *testing.T) {
		got, err := FromJSON(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
