/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package zone

import "testing"

func TestNameTreeLessOrEqual(t *testing.T) {
	tr := NewNameTree()
	table := NewNameTable(nil)
	names := []string{"a.example.com.", "m.example.com.", "z.example.com."}
	for _, s := range names {
		n, _ := NewName(s)
		if err := tr.Insert(n, NewNode(table.AddOrDedupe(n))); err != nil {
			t.Fatal(err)
		}
	}

	exact, _ := NewName("m.example.com.")
	match, found, _ := tr.LessOrEqual(exact)
	if !match || found == nil {
		t.Fatalf("expected an exact match for m.example.com.")
	}

	between, _ := NewName("n.example.com.")
	match, _, prev := tr.LessOrEqual(between)
	if match {
		t.Fatalf("did not expect an exact match")
	}
	want, _ := NewName("m.example.com.")
	if prev == nil || !prev.Owner.Name.Equal(want) {
		t.Fatalf("expected predecessor m.example.com., got %v", prev)
	}

	before, _ := NewName("0.example.com.")
	match, _, prev = tr.LessOrEqual(before)
	if match {
		t.Fatalf("did not expect an exact match")
	}
	wantWrap, _ := NewName("z.example.com.")
	if prev == nil || !prev.Owner.Name.Equal(wantWrap) {
		t.Fatalf("expected wrap-around predecessor z.example.com., got %v", prev)
	}
}

func TestNameTreeInsertRejectsDuplicate(t *testing.T) {
	tr := NewNameTree()
	table := NewNameTable(nil)
	n, _ := NewName("www.example.com.")
	if err := tr.Insert(n, NewNode(table.AddOrDedupe(n))); err != nil {
		t.Fatal(err)
	}
	err := tr.Insert(n, NewNode(table.AddOrDedupe(n)))
	if err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
}

func TestNameTreeApplyInorderIsSorted(t *testing.T) {
	tr := NewNameTree()
	table := NewNameTable(nil)
	names := []string{"z.example.com.", "a.example.com.", "m.example.com."}
	for _, s := range names {
		n, _ := NewName(s)
		_ = tr.Insert(n, NewNode(table.AddOrDedupe(n)))
	}
	var seen []string
	tr.ApplyInorder(func(n *Node) bool {
		seen = append(seen, n.Owner.Name.String())
		return true
	})
	want := []string{"a.example.com.", "m.example.com.", "z.example.com."}
	if len(seen) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("index %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}
