package vectorize

import "testing"

func TestCancellationSet(t *testing.T) {
	set := NewCancellationSet()

	if set.Consume("articles") {
		t.Fatal("consume on empty set reported a request")
	}

	set.Request("articles")
	set.Request("articles") // repeat requests collapse into one
	if !set.Consume("articles") {
		t.Fatal("request not visible to consume")
	}
	if set.Consume("articles") {
		t.Fatal("request survived consume")
	}

	set.Request("articles")
	set.Request("docs")
	set.Clear("articles")
	if set.Consume("articles") {
		t.Fatal("cleared request still visible")
	}
	if !set.Consume("docs") {
		t.Fatal("clear removed an unrelated request")
	}
}
