package transformz

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func descriptor(name, category string) Descriptor {
	return Descriptor{
		Name:     name,
		Category: category,
		Compute: func(_ context.Context, v any, _ Options) (any, error) {
			return v, nil
		},
	}
}

func TestRegistry(t *testing.T) {
	t.Run("Register And Get", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(descriptor("strip", "text"))

		d, ok := reg.Get("strip")
		if !ok {
			t.Fatal("expected strip to be registered")
		}
		if d.Name != "strip" || d.Category != "text" {
			t.Errorf("unexpected descriptor %+v", d)
		}
		if _, ok := reg.Get("missing"); ok {
			t.Error("expected missing to be absent")
		}
		if reg.Len() != 1 {
			t.Errorf("expected 1, got %d", reg.Len())
		}
	})

	t.Run("Category Index", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(descriptor("strip", "text"))
		reg.Register(descriptor("int", "numeric"))
		reg.Register(descriptor("lowercase", "text"))

		if diff := cmp.Diff([]string{"strip", "lowercase"}, reg.Category("text")); diff != "" {
			t.Errorf("text category mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"text", "numeric"}, reg.Categories()); diff != "" {
			t.Errorf("categories mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"int", "lowercase", "strip"}, reg.Names()); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Replace In Same Category Keeps Position", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(descriptor("a", "text"))
		reg.Register(descriptor("b", "text"))
		replacement := descriptor("a", "text")
		replacement.OutputType = "string"
		reg.Register(replacement)

		if diff := cmp.Diff([]string{"a", "b"}, reg.Category("text")); diff != "" {
			t.Errorf("category mismatch (-want +got):\n%s", diff)
		}
		d, _ := reg.Get("a")
		if d.OutputType != "string" {
			t.Error("expected replacement descriptor")
		}
	})

	t.Run("Replace In Other Category Moves", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(descriptor("a", "text"))
		reg.Register(descriptor("b", "text"))
		reg.Register(descriptor("c", "numeric"))
		reg.Register(descriptor("a", "numeric"))

		if diff := cmp.Diff([]string{"b"}, reg.Category("text")); diff != "" {
			t.Errorf("text mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"c", "a"}, reg.Category("numeric")); diff != "" {
			t.Errorf("numeric mismatch (-want +got):\n%s", diff)
		}
		if reg.Len() != 3 {
			t.Errorf("expected 3, got %d", reg.Len())
		}
	})

	t.Run("Moving The Last Member Drops The Category", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(descriptor("a", "text"))
		reg.Register(descriptor("a", "numeric"))

		if diff := cmp.Diff([]string{"numeric"}, reg.Categories()); diff != "" {
			t.Errorf("categories mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Unregister", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(descriptor("a", "text"))
		reg.Register(descriptor("b", "text"))
		reg.Unregister("a")
		reg.Unregister("never-registered")

		if reg.Has("a") {
			t.Error("expected a to be removed")
		}
		if diff := cmp.Diff([]string{"b"}, reg.Category("text")); diff != "" {
			t.Errorf("category mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Params Are Copied", func(t *testing.T) {
		reg := NewRegistry()
		params := []Param{{Name: "length", Type: "int", Default: 50}}
		d := descriptor("truncate", "text")
		d.Params = params
		reg.Register(d)

		params[0].Default = 1
		got, _ := reg.Get("truncate")
		if got.Params[0].Default != 50 {
			t.Errorf("expected registry copy to keep 50, got %v", got.Params[0].Default)
		}
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		reg := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				reg.Register(descriptor("shared", "text"))
			}()
			go func() {
				defer wg.Done()
				reg.Get("shared")
				reg.Category("text")
			}()
		}
		wg.Wait()

		if diff := cmp.Diff([]string{"shared"}, reg.Category("text")); diff != "" {
			t.Errorf("expected no duplicates (-want +got):\n%s", diff)
		}
	})
}

func TestDescriptorOptions(t *testing.T) {
	d := Descriptor{Params: []Param{
		{Name: "length", Default: 50},
		{Name: "suffix", Default: "..."},
		{Name: "pattern"},
	}}

	got := d.options(Options{"length": 5})
	want := Options{"length": 5, "suffix": "..."}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	if got := (Descriptor{}).options(nil); got == nil {
		t.Error("expected non-nil options")
	}
}
