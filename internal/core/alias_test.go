package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidAlias(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"sales2024", true},
		{"Åkesson", true},
		{"äöå", true},
		{"", false},
		{"with space", false},
		{"dash-ed", false},
		{"under_score", false},
		{"dot.ted", false},
	}

	for _, tt := range tests {
		if got := ValidAlias(tt.name); got != tt.want {
			t.Errorf("ValidAlias(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAliasRegistry_AddAndResolve(t *testing.T) {
	r := NewAliasRegistry(nil)

	got, err := r.Add("ds1", []string{"zeta", "alpha", "zeta"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if diff := cmp.Diff([]string{"alpha", "zeta"}, got); diff != "" {
		t.Errorf("Add() mismatch (-want +got):\n%s", diff)
	}

	id, ok := r.Resolve("alpha")
	if !ok || id != "ds1" {
		t.Errorf("Resolve(alpha) = %q, %v, want ds1, true", id, ok)
	}
	if _, ok := r.Resolve("Alpha"); ok {
		t.Error("Resolve should be case-sensitive")
	}

	// Re-adding an alias the dataset already owns is fine.
	if _, err := r.Add("ds1", []string{"alpha", "beta"}); err != nil {
		t.Errorf("Add() of owned alias error = %v", err)
	}
	if diff := cmp.Diff([]string{"alpha", "beta", "zeta"}, r.List("ds1")); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestAliasRegistry_ConflictIsAtomic(t *testing.T) {
	r := NewAliasRegistry(nil)
	if _, err := r.Add("ds1", []string{"taken"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	_, err := r.Add("ds2", []string{"fresh", "taken"})

	var conflict *AliasConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Add() error = %v, want *AliasConflictError", err)
	}
	if conflict.Alias != "taken" {
		t.Errorf("conflict.Alias = %q, want %q", conflict.Alias, "taken")
	}
	if _, ok := r.Resolve("fresh"); ok {
		t.Error("partial batch was applied")
	}
	if len(r.List("ds2")) != 0 {
		t.Errorf("List(ds2) = %v, want empty", r.List("ds2"))
	}
}

func TestAliasRegistry_InvalidName(t *testing.T) {
	r := NewAliasRegistry(nil)

	_, err := r.Add("ds1", []string{"good", "not good"})

	var invalid *InvalidAliasError
	if !errors.As(err, &invalid) {
		t.Fatalf("Add() error = %v, want *InvalidAliasError", err)
	}
	if _, ok := r.Resolve("good"); ok {
		t.Error("partial batch was applied")
	}
}

func TestAliasRegistry_ShadowingDatasetID(t *testing.T) {
	exists := func(id string) bool { return id == "abc123" || id == "ds1" }
	r := NewAliasRegistry(exists)

	_, err := r.Add("ds1", []string{"abc123"})

	var conflict *AliasConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("Add() error = %v, want *AliasConflictError", err)
	}
}

func TestAliasRegistry_Replace(t *testing.T) {
	r := NewAliasRegistry(nil)
	_, _ = r.Add("ds1", []string{"old1", "old2"})
	_, _ = r.Add("ds2", []string{"other"})

	t.Run("conflict keeps old set", func(t *testing.T) {
		_, err := r.Replace("ds1", []string{"new", "other"})
		if err == nil {
			t.Fatal("Replace() expected conflict")
		}
		if diff := cmp.Diff([]string{"old1", "old2"}, r.List("ds1")); diff != "" {
			t.Errorf("List() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("success swaps set", func(t *testing.T) {
		got, err := r.Replace("ds1", []string{"new", "old2"})
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		if diff := cmp.Diff([]string{"new", "old2"}, got); diff != "" {
			t.Errorf("Replace() mismatch (-want +got):\n%s", diff)
		}
		if _, ok := r.Resolve("old1"); ok {
			t.Error("old1 should be unbound")
		}
	})

	t.Run("empty list clears", func(t *testing.T) {
		got, err := r.Replace("ds1", nil)
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Replace(nil) = %v, want empty", got)
		}
	})
}

func TestAliasRegistry_DeleteAllIdempotent(t *testing.T) {
	r := NewAliasRegistry(nil)
	_, _ = r.Add("ds1", []string{"a1", "a2"})

	r.DeleteAll("ds1")
	r.DeleteAll("ds1")
	r.DeleteAll("unknown")

	if _, ok := r.Resolve("a1"); ok {
		t.Error("a1 should be unbound")
	}

	// Freed names can be reused by another dataset.
	if _, err := r.Add("ds2", []string{"a1"}); err != nil {
		t.Errorf("Add() after DeleteAll error = %v", err)
	}
}

func TestAliasRegistry_DeletedDataset(t *testing.T) {
	live := map[string]bool{"ds1": true, "ds2": true}
	r := NewAliasRegistry(func(id string) bool { return live[id] })

	if _, err := r.Add("ds1", []string{"shared"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// ds1 is deleted after a caller resolved it but before its update ran.
	delete(live, "ds1")
	r.DeleteAll("ds1")

	for name, apply := range map[string]func(string, []string) ([]string, error){
		"Add":     r.Add,
		"Replace": r.Replace,
	} {
		if _, err := apply("ds1", []string{"late"}); !errors.Is(err, ErrDatasetNotFound) {
			t.Errorf("%s() on deleted dataset error = %v, want ErrDatasetNotFound", name, err)
		}
	}
	if _, ok := r.Resolve("late"); ok {
		t.Error("late should not be bound to a deleted dataset")
	}

	if _, err := r.Add("ds2", []string{"shared", "late"}); err != nil {
		t.Errorf("Add() of freed names error = %v", err)
	}
}
