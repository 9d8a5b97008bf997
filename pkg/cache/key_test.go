package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "host and path",
			key: CacheKey{
				Host: "b.thumbs.redditmedia.com",
				Path: "/abc.jpg",
			},
			want: "topposts:img:b.thumbs.redditmedia.com/abc.jpg",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Host: "preview.redd.it",
				Path: "/abc.jpg",
				QueryParams: url.Values{
					"width": []string{"640"},
					"s":     []string{"deadbeef"},
					"auto":  []string{"webp"},
				},
			},
			want: "topposts:img:preview.redd.it/abc.jpg:auto=webp:s=deadbeef:width=640",
		},
		{
			name: "root path",
			key: CacheKey{
				Host: "example.com",
				Path: "/",
			},
			want: "topposts:img:example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyForURL(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		want    string
		wantErr bool
	}{
		{
			name:   "escaped preview url",
			rawURL: "https://Preview.Redd.it/abc.jpg?width=640&crop=smart&s=1",
			want:   "topposts:img:preview.redd.it/abc.jpg:crop=smart:s=1:width=640",
		},
		{
			name:   "thumbnail url",
			rawURL: "https://b.thumbs.redditmedia.com/x_y.jpg",
			want:   "topposts:img:b.thumbs.redditmedia.com/x_y.jpg",
		},
		{
			name:    "relative url",
			rawURL:  "/abc.jpg",
			wantErr: true,
		},
		{
			name:    "unparseable url",
			rawURL:  "http://[::1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := KeyForURL(tt.rawURL)
			if (err != nil) != tt.wantErr {
				t.Fatalf("KeyForURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := key.String(); got != tt.want {
				t.Errorf("KeyForURL().String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Same URL with reordered query parameters maps to the same key.
func TestKeyForURL_Determinism(t *testing.T) {
	a, err := KeyForURL("https://preview.redd.it/a.jpg?s=1&width=640")
	if err != nil {
		t.Fatal(err)
	}
	b, err := KeyForURL("https://preview.redd.it/a.jpg?width=640&s=1")
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Errorf("keys differ: %q vs %q", a.String(), b.String())
	}
}
