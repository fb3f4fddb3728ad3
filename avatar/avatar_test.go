package avatar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/keycodingyfq/soft-compositor/media"
)

func writeTestImage(t *testing.T, width, height uint32) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "avatar."+itoa(width)+"x"+itoa(height)+".i420")
	data := make([]byte, media.I420PayloadSize(width, height))
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func TestParseImageSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url     string
		w, h    uint32
		wantErr bool
	}{
		{"avatar.320x240.i420", 320, 240, false},
		{"/path/to/avatar.16x16.raw", 16, 16, false},
		{"no-size-here.raw", 0, 0, true},
		{"missing.320y240.raw", 0, 0, true},
	}
	for _, tc := range cases {
		w, h, err := parseImageSize(tc.url)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseImageSize(%q): expected an error", tc.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseImageSize(%q): %v", tc.url, err)
		}
		if w != tc.w || h != tc.h {
			t.Errorf("parseImageSize(%q) = %dx%d, want %dx%d", tc.url, w, h, tc.w, tc.h)
		}
	}
}

func TestGetAvatarFrameLoadsAndCaches(t *testing.T) {
	t.Parallel()

	path := writeTestImage(t, 32, 32)
	m := New(4, nil)
	m.SetAvatar(0, path)

	f1 := m.GetAvatarFrame(0)
	if f1 == nil {
		t.Fatal("GetAvatarFrame returned nil for a valid image")
	}
	defer f1.Buffer.Release()

	f2 := m.GetAvatarFrame(0)
	if f2 == nil {
		t.Fatal("GetAvatarFrame returned nil on cache hit")
	}
	defer f2.Buffer.Release()

	if f1.Buffer != f2.Buffer {
		t.Fatal("expected the cached frame to be reused across calls")
	}
}

func TestGetAvatarFrameUnboundIndexIsNil(t *testing.T) {
	t.Parallel()

	m := New(4, nil)
	if f := m.GetAvatarFrame(0); f != nil {
		t.Fatal("expected nil for an index with no bound avatar")
	}
}

func TestGetAvatarFrameMissingFileIsNil(t *testing.T) {
	t.Parallel()

	m := New(4, nil)
	m.SetAvatar(0, "/nonexistent/avatar.32x32.raw")
	if f := m.GetAvatarFrame(0); f != nil {
		t.Fatal("expected nil avatar load failure for a missing file")
	}
}

func TestEvictionReleasesUnreferencedFrame(t *testing.T) {
	t.Parallel()

	path := writeTestImage(t, 16, 16)
	m := New(4, nil)
	m.SetAvatar(0, path)
	m.SetAvatar(1, path)

	f := m.GetAvatarFrame(0)
	if f == nil {
		t.Fatal("GetAvatarFrame returned nil")
	}
	f.Buffer.Release()

	m.UnsetAvatar(0)
	// index 1 still references path, so the cache entry must survive.
	f2 := m.GetAvatarFrame(1)
	if f2 == nil {
		t.Fatal("expected avatar to remain cached while index 1 still references it")
	}
	f2.Buffer.Release()

	m.UnsetAvatar(1)
	if f3 := m.GetAvatarFrame(1); f3 != nil {
		t.Fatal("expected nil once no index references the url any longer")
	}
}
