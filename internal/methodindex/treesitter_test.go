//go:build cgo

package methodindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const cartSource = `package com.acme.shop;

import java.util.List;

public class Cart {
    private int total;

    public Cart(int start) {
        this.total = start;
    }

    @Override
    public String toString() {
        Runnable r = new Runnable() {
            public void run() {
            }
        };
        return "cart";
    }

    int add(int x) { return total += x; }

    int add(int x,
            int y) {
        return add(x) + y;
    }

    static class Line {
        double total() { return 0; }
    }

    enum Mode {
        FAST {
            void go() {}
        };
        void go() {}
    }
}
`

func keysOf(methods []Method) []string {
	keys := make([]string, 0, len(methods))
	for _, m := range methods {
		keys = append(keys, m.Key)
	}
	return keys
}

func TestIndexSource(t *testing.T) {
	ix := NewIndexer()
	methods, err := ix.IndexSource(context.Background(), "Cart.java", []byte(cartSource))
	if err != nil {
		t.Fatalf("IndexSource failed: %v", err)
	}

	want := []string{
		"com.acme.shop.Cart.<init>.8",
		"com.acme.shop.Cart.toString.13",
		"com.acme.shop.Cart.add.21",
		"com.acme.shop.Cart.add.23",
		"com.acme.shop.Cart$1.run.15",
		"com.acme.shop.Cart$Line.total.29",
		"com.acme.shop.Cart$Mode.go.36",
		"com.acme.shop.Cart$Mode$1.go.34",
	}
	if diff := cmp.Diff(want, keysOf(methods)); diff != "" {
		t.Fatalf("methods mismatch (-want +got):\n%s", diff)
	}

	byKey := make(map[string]Method)
	for _, m := range methods {
		byKey[m.Key] = m
	}
	if got := byKey["com.acme.shop.Cart.add.23"].Params; got != "(int x, int y)" {
		t.Errorf("Params = %q", got)
	}
	if got := byKey["com.acme.shop.Cart.toString.13"].EndLine; got != 19 {
		t.Errorf("EndLine = %d, want 19", got)
	}
	if got := byKey["com.acme.shop.Cart.<init>.8"].ID.MethodName; got != ConstructorName {
		t.Errorf("constructor name = %q", got)
	}
}

func TestIndexSource_LocalClassWithoutPackage(t *testing.T) {
	src := `class Outer {
    void f() {
        class Helper {
            void h() {}
        }
    }
}
`
	methods, err := NewIndexer().IndexSource(context.Background(), "Outer.java", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Outer.f.2", "Outer$1Helper.h.4"}, keysOf(methods)); diff != "" {
		t.Errorf("methods mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("src/main/java/a/A.java", "package a;\nclass A {\n  void run() {}\n}\n")
	write("src/main/java/b/B.java", "package b;\nclass B {\n  B() {}\n}\n")
	write("build/gen/C.java", "class C { void skipped() {} }\n")
	write(".git/D.java", "class D { void skipped() {} }\n")
	write("README.md", "not java")

	methods, err := (&Indexer{Workers: 2}).IndexDir(context.Background(), root)
	if err != nil {
		t.Fatalf("IndexDir failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.A.run.3", "b.B.<init>.3"}, keysOf(methods)); diff != "" {
		t.Errorf("methods mismatch (-want +got):\n%s", diff)
	}
	if methods[0].Path != "src/main/java/a/A.java" {
		t.Errorf("Path = %q", methods[0].Path)
	}

	res := Resolve(methods, []string{"A.run", "b.B.<init>"})
	if diff := cmp.Diff([]string{"a.A.run.3", "b.B.<init>.3"}, res.IDs); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexFile_Missing(t *testing.T) {
	if _, err := NewIndexer().IndexFile(context.Background(), filepath.Join(t.TempDir(), "none.java")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
