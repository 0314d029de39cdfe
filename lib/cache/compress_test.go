// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/rand"
	"testing"
)

func TestCompressionTagString(t *testing.T) {
	tests := []struct {
		tag  CompressionTag
		want string
	}{
		{CompressionNone, "none"},
		{CompressionLZ4, "lz4"},
		{CompressionZstd, "zstd"},
		{CompressionTag(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.tag.String()
			if got != tt.want {
				t.Errorf("CompressionTag(%d).String() = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		t.Run(name, func(t *testing.T) {
			tag, err := ParseCompressionTag(name)
			if err != nil {
				t.Fatalf("ParseCompressionTag(%q) failed: %v", name, err)
			}
			if tag.String() != name {
				t.Errorf("roundtrip: ParseCompressionTag(%q).String() = %q", name, tag.String())
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseCompressionTag("gzip")
		if err == nil {
			t.Error("ParseCompressionTag(\"gzip\") should fail")
		}
	})
}

func TestCompressDecompressNone(t *testing.T) {
	data := []byte("uncompressed data should pass through unchanged")

	compressed, err := Compress(data, CompressionNone)
	if err != nil {
		t.Fatalf("Compress(none) failed: %v", err)
	}

	// For CompressionNone, the compressed output should be the same slice.
	if &compressed[0] != &data[0] {
		t.Error("CompressionNone should return the same slice, not a copy")
	}

	decompressed, err := Decompress(compressed, CompressionNone, len(data))
	if err != nil {
		t.Fatalf("Decompress(none) failed: %v", err)
	}

	if string(decompressed) != string(data) {
		t.Error("none compression roundtrip failed")
	}
}

func TestCompressDecompressNoneSizeMismatch(t *testing.T) {
	data := []byte("five bytes extra")

	_, err := Decompress(data, CompressionNone, len(data)+5)
	if err == nil {
		t.Error("Decompress(none) should fail when size does not match")
	}
}

func TestCompressDecompressLZ4(t *testing.T) {
	// Compressible data: repeated pattern.
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 17)
	}

	compressed, err := Compress(data, CompressionLZ4)
	if err != nil {
		t.Fatalf("Compress(lz4) failed: %v", err)
	}

	if len(compressed) >= len(data) {
		t.Errorf("LZ4 did not compress: %d bytes → %d bytes", len(data), len(compressed))
	}

	decompressed, err := Decompress(compressed, CompressionLZ4, len(data))
	if err != nil {
		t.Fatalf("Decompress(lz4) failed: %v", err)
	}

	for i := range data {
		if decompressed[i] != data[i] {
			t.Fatalf("LZ4 roundtrip mismatch at byte %d", i)
		}
	}
}

func TestCompressDecompressZstd(t *testing.T) {
	// Text-like data: a build log line repeated to a realistic archive
	// size.
	line := []byte("[12:03:44] compiling widget/src/render/scene_graph.rs against target x86_64-unknown-linux-gnu\n")
	repeated := make([]byte, 0, 64*1024)
	for len(repeated) < 64*1024 {
		repeated = append(repeated, line...)
	}

	compressed, err := Compress(repeated, CompressionZstd)
	if err != nil {
		t.Fatalf("Compress(zstd) failed: %v", err)
	}

	if len(compressed) >= len(repeated) {
		t.Errorf("Zstd did not compress: %d bytes → %d bytes", len(repeated), len(compressed))
	}

	ratio := float64(len(repeated)) / float64(len(compressed))
	if ratio < 2.0 {
		t.Errorf("Zstd compression ratio %.2fx is unexpectedly low for repetitive text", ratio)
	}

	decompressed, err := Decompress(compressed, CompressionZstd, len(repeated))
	if err != nil {
		t.Fatalf("Decompress(zstd) failed: %v", err)
	}

	for i := range repeated {
		if decompressed[i] != repeated[i] {
			t.Fatalf("Zstd roundtrip mismatch at byte %d", i)
		}
	}
}

func TestCompressIncompressible(t *testing.T) {
	// Random data is incompressible.
	data := make([]byte, 64*1024)
	rand.Read(data)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			_, err := Compress(data, tag)
			if err == nil {
				t.Fatalf("%s should return incompressible error for random data", tag)
			}
			if !IsIncompressible(err) {
				t.Errorf("expected incompressible error, got: %v", err)
			}
		})
	}
}

func TestSelectCompressionProbe(t *testing.T) {
	// Highly compressible data: should select zstd.
	compressible := make([]byte, 64*1024)
	for i := range compressible {
		compressible[i] = byte(i % 5)
	}
	tag := SelectCompression(compressible)
	if tag != CompressionZstd {
		t.Errorf("SelectCompression(compressible) = %s, want zstd", tag)
	}

	// Random data: should select none.
	random := make([]byte, 64*1024)
	rand.Read(random)
	tag = SelectCompression(random)
	if tag != CompressionNone {
		t.Errorf("SelectCompression(random) = %s, want none", tag)
	}
}

func TestSelectCompressionEmpty(t *testing.T) {
	tag := SelectCompression(nil)
	if tag != CompressionNone {
		t.Errorf("SelectCompression(empty) = %s, want none", tag)
	}
}

func TestCompressAutoFallback(t *testing.T) {
	// Random data: CompressAuto should fall back to CompressionNone.
	data := make([]byte, 64*1024)
	rand.Read(data)

	compressed, tag, err := CompressAuto(data)
	if err != nil {
		t.Fatalf("CompressAuto failed: %v", err)
	}

	if tag != CompressionNone {
		t.Errorf("tag = %s, want none for random data", tag)
	}

	// For CompressionNone, compressed should be the original data.
	if len(compressed) != len(data) {
		t.Errorf("compressed size %d != original %d for none", len(compressed), len(data))
	}
}

func TestCompressUnsupportedTag(t *testing.T) {
	if _, err := Compress([]byte("data"), CompressionTag(99)); err == nil {
		t.Error("Compress with unknown tag should fail")
	}
	if _, err := Decompress([]byte("data"), CompressionTag(99), 4); err == nil {
		t.Error("Decompress with unknown tag should fail")
	}
}

// Benchmarks for compression. Run with:
//
//	go test ./lib/cache -bench=Compress -benchmem -run='^$'

func BenchmarkCompressLZ4(b *testing.B) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 17)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		Compress(data, CompressionLZ4)
	}
}

func BenchmarkCompressZstd(b *testing.B) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 17)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		Compress(data, CompressionZstd)
	}
}

func BenchmarkDecompressZstd(b *testing.B) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 17)
	}
	compressed, err := Compress(data, CompressionZstd)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		Decompress(compressed, CompressionZstd, len(data))
	}
}
