package checksum_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/checksum"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs/billy"
)

func TestAlgorithm_KnownVectors(t *testing.T) {
	tests := []struct {
		alg   string
		input string
		want  string
	}{
		{checksum.SHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{checksum.SHA256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{checksum.SHA256, "Hello, world!", "315f5bdb76d078c43b8ac0064e4a0164612b1fce77c869345bfc94c75894edd3"},
		{checksum.MD5, "", "d41d8cd98f00b204e9800998ecf8427e"},
		{checksum.MD5, "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{checksum.SHA1, "abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{checksum.SHA3256, "", "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
		{checksum.BLAKE3, "", "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{
			checksum.BLAKE2b, "Hello, world!",
			"a2764d133a16816b5847a737a786f2ece4c148095c5faa73e24b4cc5d666c3e4" +
				"5ec271504e14dc6127ddfce4e144fb23b91a6f7b04b53d695502290722953b0f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.alg+"/"+tt.input, func(t *testing.T) {
			alg, err := checksum.Lookup(tt.alg)
			require.NoError(t, err)
			got, err := alg.Sum(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlgorithm_DigestLengths(t *testing.T) {
	want := map[string]int{
		checksum.SHA256:  64,
		checksum.SHA512:  128,
		checksum.SHA3256: 64,
		checksum.SHA3512: 128,
		checksum.BLAKE2b: 128,
		checksum.BLAKE2s: 64,
		checksum.BLAKE3:  64,
		checksum.MD5:     32,
		checksum.SHA1:    40,
	}
	assert.Len(t, checksum.Algorithms(), len(want))

	for name, n := range want {
		alg, err := checksum.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, alg.Name())

		a, err := alg.Sum(strings.NewReader("payload"))
		require.NoError(t, err)
		b, err := alg.Sum(strings.NewReader("payload"))
		require.NoError(t, err)
		assert.Len(t, a, n, name)
		assert.Equal(t, a, b, "digest must be stable for %s", name)
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := checksum.Lookup("crc32")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"crc32"`)
}

func TestManifest(t *testing.T) {
	fs := billy.NewInMemoryFS()
	require.NoError(t, fs.WriteFile("dist/b.zip", []byte("abc"), 0o644))
	require.NoError(t, fs.WriteFile("dist/a.tar.gz", []byte(""), 0o644))

	alg, err := checksum.Lookup(checksum.SHA256)
	require.NoError(t, err)
	m := checksum.NewManifest(alg)

	_, err = m.AddFile(fs, "dist/b.zip")
	require.NoError(t, err)
	e, err := m.AddFile(fs, "dist/a.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "a.tar.gz", e.Filename)

	p, err := m.Write(fs, "dist")
	require.NoError(t, err)
	assert.Equal(t, "dist/checksums.txt", p)

	data, err := fs.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855  a.tar.gz\n"+
			"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad  b.zip\n",
		string(data))

	entries, err := checksum.ParseManifest(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), entries)
}

func TestManifest_Duplicate(t *testing.T) {
	alg, err := checksum.Lookup(checksum.MD5)
	require.NoError(t, err)
	m := checksum.NewManifest(alg)

	require.NoError(t, m.Add("x", "app.zip"))
	err = m.Add("y", "app.zip")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
	assert.Equal(t, 1, m.Len())
}

func TestManifest_MissingFile(t *testing.T) {
	alg, err := checksum.Lookup(checksum.SHA256)
	require.NoError(t, err)

	_, err = checksum.NewManifest(alg).AddFile(billy.NewInMemoryFS(), "dist/missing")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodePackagingFailed))
}

func TestParseManifest_Malformed(t *testing.T) {
	_, err := checksum.ParseManifest(strings.NewReader("deadbeef\n"))
	require.Error(t, err)
}
