package logger

import "testing"

func TestNewPerEnvironment(t *testing.T) {
	for _, env := range []string{EnvProduction, EnvDevelopment, EnvTest, ""} {
		l, err := New(env)
		if err != nil {
			t.Fatalf("New(%q): %v", env, err)
		}
		if l == nil {
			t.Fatalf("New(%q) returned nil logger", env)
		}
	}
}
