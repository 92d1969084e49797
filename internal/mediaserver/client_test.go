package mediaserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/rs/zerolog"
)

func TestPlexApplySetsPrerollPreference(t *testing.T) {
	var gotMethod, gotToken, gotPref string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotToken = r.Header.Get("X-Plex-Token")
		gotPref = r.URL.Query().Get("CinemaTrailersPrerollID")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewHTTPApplier(5*time.Second, zerolog.Nop())
	server := models.MediaServer{Name: "den", Kind: models.ServerPlex, BaseURL: srv.URL, Token: "tok123"}

	err := a.Apply(context.Background(), server, `/mnt/a.mp4;/mnt/b.mp4`, models.PlaybackRandom)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotToken != "tok123" {
		t.Errorf("token = %q", gotToken)
	}
	if gotPref != "/mnt/a.mp4;/mnt/b.mp4" {
		t.Errorf("preference = %q", gotPref)
	}
}

func TestJellyfinApplyPostsPluginConfig(t *testing.T) {
	var gotBody jellyfinPluginConfig
	var gotToken string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Emby-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewHTTPApplier(5*time.Second, zerolog.Nop())
	server := models.MediaServer{Name: "jf", Kind: models.ServerJellyfin, BaseURL: srv.URL, Token: "jf-tok"}

	err := a.Apply(context.Background(), server, "/mnt/a.mp4,/mnt/b.mp4", models.PlaybackSequential)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if gotToken != "jf-tok" {
		t.Errorf("token = %q", gotToken)
	}
	if gotBody.PrerollPaths != "/mnt/a.mp4,/mnt/b.mp4" {
		t.Errorf("paths = %q", gotBody.PrerollPaths)
	}
	if gotBody.Shuffle {
		t.Error("sequential mode must not request shuffle")
	}
}

func TestApplyReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewHTTPApplier(5*time.Second, zerolog.Nop())
	server := models.MediaServer{Name: "den", Kind: models.ServerPlex, BaseURL: srv.URL, Token: "bad"}

	err := a.Apply(context.Background(), server, "/mnt/a.mp4", models.PlaybackRandom)
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("err = %v, want ErrDispatch", err)
	}
}

func TestApplyRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	a := NewHTTPApplier(10*time.Second, zerolog.Nop())
	server := models.MediaServer{Name: "slow", Kind: models.ServerPlex, BaseURL: srv.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := a.Apply(ctx, server, "/mnt/a.mp4", models.PlaybackRandom)
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("err = %v, want ErrDispatch on timeout", err)
	}
}

func TestUnknownServerKindRefused(t *testing.T) {
	a := NewHTTPApplier(time.Second, zerolog.Nop())
	err := a.Apply(context.Background(), models.MediaServer{Kind: "kodi"}, "/a.mp4", models.PlaybackRandom)
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("err = %v, want ErrDispatch", err)
	}
}
