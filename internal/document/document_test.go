package document

import "testing"

func TestParseRef(t *testing.T) {
	base := NewRef("main", "Drafts", "Home")
	cases := []struct {
		name  string
		input string
		want  Ref
	}{
		{name: "full", input: "other:News.Launch", want: NewRef("other", "News", "Launch")},
		{name: "local", input: "News.Launch", want: NewRef("main", "News", "Launch")},
		{name: "name only", input: "Launch", want: NewRef("main", "Drafts", "Launch")},
		{name: "nested space", input: "A.B.C", want: NewRef("main", "A.B", "C")},
		{name: "blank", input: "  ", want: Ref{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseRef(tc.input, base); got != tc.want {
				t.Fatalf("ParseRef(%q) = %+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestRefCompactRoundTrip(t *testing.T) {
	ref := NewRef("main", "News", "Launch")
	if got := ref.Compact(NewRef("main", "Drafts", "X")); got != "News.Launch" {
		t.Fatalf("Compact() = %q", got)
	}
	if got := ref.Compact(NewRef("other", "Drafts", "X")); got != "main:News.Launch" {
		t.Fatalf("Compact() across wikis = %q", got)
	}
	if got := ParseRef(ref.String(), Ref{}); got != ref {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestRemoveObjectKeepsNumbers(t *testing.T) {
	doc := New(NewRef("main", "News", "Launch"))
	first := doc.NewObject(ClassRights)
	second := doc.NewObject(ClassRights)
	doc.RemoveObject(first)

	slots := doc.Objects(ClassRights)
	if len(slots) != 2 || slots[0] != nil || slots[1] != second {
		t.Fatalf("unexpected slots after remove: %+v", slots)
	}
	third := doc.NewObject(ClassRights)
	if third.Number != 2 {
		t.Fatalf("new object number = %d, want 2", third.Number)
	}
	if doc.Object(ClassRights) != second {
		t.Fatal("Object() should return the first non-empty slot")
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := New(NewRef("main", "News", "Launch"))
	doc.Content = "Hello"
	obj := doc.NewObject("Blog.Post")
	obj.Set("category", "news")
	att := &Attachment{Filename: "a.png"}
	att.SetContent([]byte{1, 2, 3})
	doc.AddAttachment(att)

	clone := doc.Clone()
	clone.Object("Blog.Post").Set("category", "sports")
	clone.Attachment("a.png").Content()[0] = 9

	if doc.Object("Blog.Post").Get("category") != "news" {
		t.Fatal("object mutation leaked into original")
	}
	if doc.Attachment("a.png").Content()[0] != 1 {
		t.Fatal("attachment mutation leaked into original")
	}
}

func TestDuplicateAndStrip(t *testing.T) {
	doc := New(NewRef("main", "Drafts", "Launch"))
	doc.IsNew = false
	doc.Version = 4
	doc.NewObject(ClassRights)
	doc.NewObject(ClassComments)
	doc.NewObject(ClassWorkflow)
	doc.NewObject("Blog.Post")

	dup := doc.Duplicate(NewRef("main", "News", "Launch"))
	Strip(dup)

	if !dup.IsNew || dup.Version != 0 {
		t.Fatalf("duplicate should be new, got IsNew=%v Version=%d", dup.IsNew, dup.Version)
	}
	if got := dup.Classes(); len(got) != 1 || got[0] != "Blog.Post" {
		t.Fatalf("classes after strip = %v", got)
	}
	if len(doc.Classes()) != 4 {
		t.Fatal("strip must not touch the source document")
	}
}

func TestAttachmentRelease(t *testing.T) {
	att := &Attachment{Filename: "a.txt"}
	att.SetContent([]byte("abc"))
	att.Release()
	if !att.Loaded() {
		t.Fatal("unpersisted content must survive Release")
	}
	att.MarkPersisted(ContentKey(att.Content()))
	att.Release()
	if att.Loaded() || att.Content() != nil {
		t.Fatal("persisted content should be dropped by Release")
	}
}

func TestListHelpers(t *testing.T) {
	if got := SplitList(" a, ,b ,"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("SplitList() = %v", got)
	}
	if got := JoinList([]string{"a", " ", "b"}); got != "a,b" {
		t.Fatalf("JoinList() = %q", got)
	}
}
