package pathmap

import (
	"errors"
	"testing"

	"github.com/friendsincode/heimdall_preroll/internal/models"
)

func TestLongestPrefixWinsWithUNCDestination(t *testing.T) {
	mappings := []Mapping{
		{SourcePrefix: "/data/prerolls", DestPrefix: `Z:\Prerolls`},
		{SourcePrefix: "/data/prerolls/holidays", DestPrefix: `\\NAS\Holidays`},
	}

	res := Translate("/data/prerolls/holidays/xmas.mp4", mappings)
	if !res.Mapped {
		t.Fatal("expected a mapping to match")
	}
	want := `\\NAS\Holidays\xmas.mp4`
	if res.Path != want {
		t.Fatalf("path = %q, want %q", res.Path, want)
	}
}

func TestShorterPrefixUsedWhenLongerDoesNotMatch(t *testing.T) {
	mappings := []Mapping{
		{SourcePrefix: "/data/prerolls", DestPrefix: `Z:\Prerolls`},
		{SourcePrefix: "/data/prerolls/holidays", DestPrefix: `\\NAS\Holidays`},
	}

	res := Translate("/data/prerolls/generic/intro.mp4", mappings)
	want := `Z:\Prerolls\generic\intro.mp4`
	if res.Path != want {
		t.Fatalf("path = %q, want %q", res.Path, want)
	}
}

func TestTieBreakByListOrder(t *testing.T) {
	mappings := []Mapping{
		{SourcePrefix: "/media", DestPrefix: "/mnt/first"},
		{SourcePrefix: "/media", DestPrefix: "/mnt/second"},
	}

	res := Translate("/media/a.mp4", mappings)
	if res.Path != "/mnt/first/a.mp4" {
		t.Fatalf("path = %q, want first mapping to win ties", res.Path)
	}
}

func TestWindowsSourcePrefixMatchesCaseInsensitively(t *testing.T) {
	mappings := []Mapping{
		{SourcePrefix: `C:\Prerolls`, DestPrefix: "/srv/prerolls"},
	}

	res := Translate(`c:\prerolls\Intro.MP4`, mappings)
	if !res.Mapped {
		t.Fatal("windows source prefix should match case-insensitively")
	}
	if res.Path != "/srv/prerolls/Intro.MP4" {
		t.Fatalf("path = %q, remainder case must be preserved", res.Path)
	}
}

func TestPosixSourcePrefixIsCaseSensitive(t *testing.T) {
	mappings := []Mapping{
		{SourcePrefix: "/Data/Prerolls", DestPrefix: "/mnt/x"},
	}

	res := Translate("/data/prerolls/a.mp4", mappings)
	if res.Mapped {
		t.Fatal("posix prefixes must not match case-insensitively")
	}
}

func TestSeparatorFollowsDestinationStyle(t *testing.T) {
	tests := []struct {
		name string
		dest string
		want string
	}{
		{"drive letter dest", `D:\preroll`, `D:\preroll\sub\a.mp4`},
		{"unc dest", `\\nas\share`, `\\nas\share\sub\a.mp4`},
		{"posix dest", "/mnt/preroll", "/mnt/preroll/sub/a.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Translate("/src/sub/a.mp4", []Mapping{{SourcePrefix: "/src", DestPrefix: tt.dest}})
			if res.Path != tt.want {
				t.Fatalf("path = %q, want %q", res.Path, tt.want)
			}
		})
	}
}

func TestWindowsRemainderRejoinedOntoPosixDestination(t *testing.T) {
	mappings := []Mapping{
		{SourcePrefix: `Z:\store`, DestPrefix: "/mnt/store"},
	}

	res := Translate(`Z:\store\holiday\a.mp4`, mappings)
	if res.Path != "/mnt/store/holiday/a.mp4" {
		t.Fatalf("path = %q, remainder separators must follow destination", res.Path)
	}
}

func TestNoMatchPassesThroughFlagged(t *testing.T) {
	res := Translate("/elsewhere/a.mp4", []Mapping{{SourcePrefix: "/data", DestPrefix: "/mnt"}})
	if res.Mapped {
		t.Fatal("expected unmapped pass-through")
	}
	if res.Path != "/elsewhere/a.mp4" {
		t.Fatalf("pass-through must not alter the path, got %q", res.Path)
	}
}

func TestPlatformMismatchRefused(t *testing.T) {
	mappings := []Mapping{
		{SourcePrefix: `C:\Only\Windows`, DestPrefix: `D:\Elsewhere`},
	}

	_, err := TranslateFor("/data/prerolls/a.mp4", mappings, models.PlatformWindows)
	if !errors.Is(err, ErrPlatformMismatch) {
		t.Fatalf("err = %v, want ErrPlatformMismatch for untranslated POSIX path on windows target", err)
	}
}

func TestPlatformValidation(t *testing.T) {
	tests := []struct {
		path     string
		platform models.Platform
		ok       bool
	}{
		{`Z:\a.mp4`, models.PlatformWindows, true},
		{`\\nas\share\a.mp4`, models.PlatformWindows, true},
		{"/mnt/a.mp4", models.PlatformWindows, false},
		{"/mnt/a.mp4", models.PlatformPosix, true},
		{`Z:\a.mp4`, models.PlatformPosix, false},
		{"relative/a.mp4", models.PlatformPosix, false},
	}

	for _, tt := range tests {
		err := ValidatePlatform(tt.path, tt.platform)
		if tt.ok && err != nil {
			t.Errorf("ValidatePlatform(%q, %s) = %v, want ok", tt.path, tt.platform, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ValidatePlatform(%q, %s) = nil, want error", tt.path, tt.platform)
		}
	}
}
