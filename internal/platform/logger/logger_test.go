package logger

import "testing"

func TestSanitizeValueRedactsCredentials(t *testing.T) {
	cases := []struct {
		key  string
		want interface{}
	}{
		{key: "password", want: "[REDACTED]"},
		{key: "user_email", want: "[REDACTED]"},
		{key: "refresh_token", want: "[REDACTED]"},
		{key: "postgres_dsn", want: "[REDACTED]"},
		{key: "mongo_uri", want: "[REDACTED]"},
		{key: "title", want: "Intro"},
	}
	for _, tc := range cases {
		if got := sanitizeValue(tc.key, "Intro"); got != tc.want {
			t.Fatalf("sanitizeValue(%q): want=%v got=%v", tc.key, tc.want, got)
		}
	}
}

func TestSanitizeValueHashesUserIDs(t *testing.T) {
	got, ok := sanitizeValue("user_id", "u-123").(string)
	if !ok {
		t.Fatalf("expected string result")
	}
	if got == "u-123" || len(got) != len("hash:")+12 {
		t.Fatalf("user_id should be hashed, got=%q", got)
	}
	if again := sanitizeValue("owner_user_id", "u-123"); again != got {
		t.Fatalf("hash should be stable: first=%q second=%v", got, again)
	}
}

func TestSanitizeMapNested(t *testing.T) {
	in := map[string]interface{}{
		"id":       "u1",
		"email":    "a@example.com",
		"settings": map[string]interface{}{"api_token": "x"},
	}
	out := sanitizeMap(in)
	if out["id"] != "u1" {
		t.Fatalf("id: want=u1 got=%v", out["id"])
	}
	if out["email"] != "[REDACTED]" {
		t.Fatalf("email should be redacted, got=%v", out["email"])
	}
	nested, _ := out["settings"].(map[string]interface{})
	if nested["api_token"] != "[REDACTED]" {
		t.Fatalf("nested token should be redacted, got=%v", nested["api_token"])
	}
}

func TestNopLoggerWith(t *testing.T) {
	log := Nop().With("service", "test")
	log.Info("hello", "k", "v")
	log.Sync()
}
