package host

import (
	"reflect"
	"testing"
)

func TestSettingsPrecedence(t *testing.T) {
	s := NewSettings(
		Values{"user": "qa", "port": 2222},
		Values{"user": "root", "forge": "https://forge.example"},
	)

	if got := s.String("user"); got != "qa" {
		t.Errorf("host value should shadow global, got %q", got)
	}
	if got := s.String("forge"); got != "https://forge.example" {
		t.Errorf("global fallback = %q", got)
	}
	if _, ok := s.Lookup("absent"); ok {
		t.Error("Lookup of unset key reported ok")
	}
}

func TestSettingsSetShadowsGlobal(t *testing.T) {
	s := NewSettings(Values{}, Values{"user": "root"})
	s.Set("user", "admin")
	if got := s.String("user"); got != "admin" {
		t.Errorf("Set did not shadow global, got %q", got)
	}
}

func TestSettingsTypedGetters(t *testing.T) {
	s := NewSettings(Values{
		"port":      "2222",
		"count":     3,
		"ratio":     float64(7),
		"flag":      true,
		"flag-str":  "false",
		"keys":      []any{"/a", "/b"},
		"key-one":   "/only",
		"keys-strs": []string{"/x"},
	}, nil)

	if got := s.Int("port", 22); got != 2222 {
		t.Errorf("Int from string = %d", got)
	}
	if got := s.Int("count", 0); got != 3 {
		t.Errorf("Int = %d", got)
	}
	if got := s.Int("ratio", 0); got != 7 {
		t.Errorf("Int from float = %d", got)
	}
	if got := s.Int("missing", 22); got != 22 {
		t.Errorf("Int default = %d", got)
	}
	if !s.Bool("flag", false) {
		t.Error("Bool = false")
	}
	if s.Bool("flag-str", true) {
		t.Error("Bool from string false = true")
	}
	if got := s.StringSlice("keys"); !reflect.DeepEqual(got, []string{"/a", "/b"}) {
		t.Errorf("StringSlice from []any = %v", got)
	}
	if got := s.StringSlice("key-one"); !reflect.DeepEqual(got, []string{"/only"}) {
		t.Errorf("StringSlice from scalar = %v", got)
	}
	if got := s.StringSlice("keys-strs"); !reflect.DeepEqual(got, []string{"/x"}) {
		t.Errorf("StringSlice = %v", got)
	}
}

func TestSettingsCopiedOnConstruction(t *testing.T) {
	hostVals := Values{"keys": []string{"/k1"}}
	globalVals := Values{"nested": Values{"a": "1"}}
	s := NewSettings(hostVals, globalVals)

	hostVals["keys"].([]string)[0] = "/mutated"
	globalVals["nested"].(Values)["a"] = "mutated"

	if got := s.StringSlice("keys"); got[0] != "/k1" {
		t.Errorf("slice aliased: %v", got)
	}
	nested, _ := s.Lookup("nested")
	if nested.(Values)["a"] != "1" {
		t.Errorf("nested map aliased: %v", nested)
	}
}
