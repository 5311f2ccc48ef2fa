package methodindex

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"tracerank/internal/model"
)

func methodsOf(t *testing.T, ids ...string) []Method {
	t.Helper()
	out := make([]Method, 0, len(ids))
	for _, s := range ids {
		id, err := model.ParseMethodID(s)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, newMethod(id, "()", "A.java", id.StartLine+1))
	}
	return out
}

func TestResolve(t *testing.T) {
	methods := methodsOf(t,
		"com.acme.Cart.add.12",
		"com.acme.Cart.add.20",
		"com.acme.Cart.<init>.5",
		"com.acme.Cart$Line.total.40",
		"org.other.Cart.add.7",
	)

	tests := []struct {
		name     string
		patterns []string
		want     Resolution
	}{
		{
			name:     "qualified key matches overloads",
			patterns: []string{"com.acme.Cart.add"},
			want:     Resolution{IDs: []string{"com.acme.Cart.add.12", "com.acme.Cart.add.20"}, Unmatched: []string{}},
		},
		{
			name:     "simple key matches every package",
			patterns: []string{"Cart.add"},
			want: Resolution{
				IDs:       []string{"com.acme.Cart.add.12", "com.acme.Cart.add.20", "org.other.Cart.add.7"},
				Unmatched: []string{},
			},
		},
		{
			name:     "nested class by simple name",
			patterns: []string{"Line.total"},
			want:     Resolution{IDs: []string{"com.acme.Cart$Line.total.40"}, Unmatched: []string{}},
		},
		{
			name:     "full id declared",
			patterns: []string{"com.acme.Cart.<init>.5"},
			want:     Resolution{IDs: []string{"com.acme.Cart.<init>.5"}, Unmatched: []string{}},
		},
		{
			name:     "full id not declared is kept",
			patterns: []string{"com.acme.Gone.run.3"},
			want:     Resolution{IDs: []string{"com.acme.Gone.run.3"}, Unmatched: []string{"com.acme.Gone.run.3"}},
		},
		{
			name:     "unknown key and blanks",
			patterns: []string{"Nope.run", "  ", "com.acme.Cart.add.12", "Cart.add"},
			want: Resolution{
				IDs:       []string{"com.acme.Cart.add.12", "com.acme.Cart.add.20", "org.other.Cart.add.7"},
				Unmatched: []string{"Nope.run"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(methods, tt.patterns)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortMethods(t *testing.T) {
	methods := methodsOf(t, "b.B.z.3", "a.A.y.9", "a.A.x.9", "a.A.w.1")
	SortMethods(methods)

	var keys []string
	for _, m := range methods {
		keys = append(keys, m.Key)
	}
	want := []string{"a.A.w.1", "a.A.x.9", "a.A.y.9", "b.B.z.3"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSimpleClass(t *testing.T) {
	tests := map[string]string{
		"com.acme.Cart":      "Cart",
		"com.acme.Cart$Line": "Line",
		"Cart":               "Cart",
		"com.acme.Cart$1":    "1",
	}
	for in, want := range tests {
		if got := simpleClass(in); got != want {
			t.Errorf("simpleClass(%q) = %q, want %q", in, got, want)
		}
	}
}
