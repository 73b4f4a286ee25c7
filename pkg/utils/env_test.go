package utils

import "testing"

func TestNormalizeEnvironment(t *testing.T) {
	tests := map[string]string{
		"prod":        EnvProd,
		"Production":  EnvProd,
		" dev ":       EnvDev,
		"staging":     EnvDev,
		"development": EnvDev,
		"":            EnvLocal,
		"anything":    EnvLocal,
	}
	for in, want := range tests {
		if got := NormalizeEnvironment(in); got != want {
			t.Errorf("NormalizeEnvironment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsProduction(t *testing.T) {
	if !IsProduction("production") {
		t.Fatal("production should be prod")
	}
	if IsProduction("local") {
		t.Fatal("local should not be prod")
	}
}
