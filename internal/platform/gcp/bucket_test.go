package gcp

import (
	"net/url"
	"testing"
)

func TestPublicURLPrecedence(t *testing.T) {
	cases := []struct {
		name string
		cfg  ObjectStorageConfig
		key  string
		want string
	}{
		{
			name: "gcs default",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "book-media"},
			key:  "images/c1/s1/fig.png",
			want: "https://storage.googleapis.com/book-media/images/c1/s1/fig.png",
		},
		{
			name: "cdn wins",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, Bucket: "book-media", CDNDomain: "cdn.example.com", EmulatorHost: "http://fake-gcs:4443"},
			key:  "/videos/c1/s1/clip.mp4",
			want: "https://cdn.example.com/videos/c1/s1/clip.mp4",
		},
		{
			name: "public base",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "book-media", PublicBaseURL: "http://localhost:4443"},
			key:  "images/c1/s1/fig.png",
			want: "http://localhost:4443/book-media/images/c1/s1/fig.png",
		},
		{
			name: "emulator media endpoint",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, Bucket: "book-media", EmulatorHost: "http://fake-gcs:4443"},
			key:  "images/c1/s1/fig.png",
			want: "http://fake-gcs:4443/storage/v1/b/book-media/o/images%2Fc1%2Fs1%2Ffig.png?alt=media",
		},
		{
			name: "gcs escapes key segments",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "book-media"},
			key:  "images/c1/s1/my diagram#2.png",
			want: "https://storage.googleapis.com/book-media/images/c1/s1/my%20diagram%232.png",
		},
		{
			name: "cdn escapes key segments",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "book-media", CDNDomain: "cdn.example.com"},
			key:  "images/c1/s1/what?.png",
			want: "https://cdn.example.com/images/c1/s1/what%3F.png",
		},
		{
			name: "public base escapes key segments",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "book-media", PublicBaseURL: "http://localhost:4443"},
			key:  "images/c1/s1/a b.png",
			want: "http://localhost:4443/book-media/images/c1/s1/a%20b.png",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := publicURL(tc.cfg, tc.key); got != tc.want {
				t.Fatalf("publicURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"images/c1/s1/fig.PNG":    "image/png",
		"images/c1/s1/photo.jpeg": "image/jpeg",
		"videos/c1/s1/clip.mov":   "video/quicktime",
		"videos/c1/s1/clip.ogg":   "video/ogg",
		"content/c1/s1.json":      "application/json",
		"images/c1/s1/raw.tiff":   OctetStream,
		"images/c1/s1/noext":      OctetStream,
		"images/fig.svg?v=2":      "image/svg+xml",
	}
	for key, want := range cases {
		if got := ContentTypeForKey(key); got != want {
			t.Fatalf("ContentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}

func TestPublicURLAddressesTheObject(t *testing.T) {
	key := "images/c1/s1/my diagram#2.png"
	u, err := url.Parse(publicURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "book-media"}, key))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Fragment != "" || u.RawQuery != "" {
		t.Fatalf("key leaked into fragment=%q query=%q", u.Fragment, u.RawQuery)
	}
	if want := "/book-media/" + key; u.Path != want {
		t.Fatalf("path: want=%q got=%q", want, u.Path)
	}
}
