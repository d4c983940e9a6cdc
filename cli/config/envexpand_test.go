package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("UCD_BUCKET", "packs")
	t.Setenv("UCD_EMPTY", "")
	t.Setenv("UCD_HOST", "cdn.example.com")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "bucket: ${UCD_BUCKET}", "bucket: packs"},
		{"unset", "bucket: ${UCD_UNSET_12345}", "bucket: "},
		{"default when unset", "bucket: ${UCD_UNSET_12345:-fallback}", "bucket: fallback"},
		{"default ignored when set", "bucket: ${UCD_BUCKET:-fallback}", "bucket: packs"},
		{"default when empty", "bucket: ${UCD_EMPTY:-fallback}", "bucket: fallback"},
		{"several", "${UCD_HOST}/${UCD_BUCKET}", "cdn.example.com/packs"},
		{"no variables", "listen: :3000", "listen: :3000"},
		{"bare dollar kept", "secret: $UCD_BUCKET", "secret: $UCD_BUCKET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_NestedInYAML(t *testing.T) {
	t.Setenv("PROXY_USER", "admin")
	t.Setenv("PROXY_PASS", "secret")

	input := `proxy:
  endpoints:
    - username: ${PROXY_USER}
      password: ${PROXY_PASS}`

	want := `proxy:
  endpoints:
    - username: admin
      password: secret`

	if got := ExpandEnv(input); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
