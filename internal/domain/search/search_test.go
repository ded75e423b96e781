package search

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTextToPrefixes(t *testing.T) {
	Convey("Given the default options", t, func() {
		opts := DefaultOptions()

		Convey("A simple phrase yields bounded word prefixes", func() {
			got := TextToPrefixes("Reduzir desperdício", opts)
			So(got, ShouldResemble, []string{"red", "redu", "reduz", "reduzi", "des", "desp", "despe", "desper"})
		})

		Convey("Short words are skipped and separators split words", func() {
			got := TextToPrefixes("a de xyz-12", opts)
			So(got, ShouldResemble, []string{"xyz"})
		})

		Convey("Repeated prefixes appear once", func() {
			got := TextToPrefixes("press pressure", opts)
			So(got, ShouldResemble, []string{"pre", "pres", "press", "pressu"})
		})

		Convey("Every prefix stays within bounds and the total is capped", func() {
			var words []string
			for i := 0; i < 30; i++ {
				words = append(words, fmt.Sprintf("w%02dxyz", i))
			}
			long := strings.Join(words, " ")
			got := TextToPrefixes(long, opts)
			So(len(got), ShouldBeLessThanOrEqualTo, opts.MaxPrefixes)
			So(len(got), ShouldEqual, opts.MaxPrefixes)
			for _, p := range got {
				So(len(p), ShouldBeGreaterThanOrEqualTo, opts.MinLen)
				So(len(p), ShouldBeLessThanOrEqualTo, opts.MaxLen)
			}
		})

		Convey("Empty text has no prefixes", func() {
			So(TextToPrefixes("", opts), ShouldBeEmpty)
			So(TextToPrefixes("!! ??", opts), ShouldBeEmpty)
		})
	})

	Convey("Given custom options", t, func() {
		got := TextToPrefixes("monitoring", Options{MinLen: 2, MaxLen: 3, MaxPrefixes: 1})
		So(got, ShouldResemble, []string{"mo"})
	})

	Convey("Given idea text", t, func() {
		got := IdeaPrefixes("Solar", "panels", DefaultOptions())
		So(got, ShouldContain, "sol")
		So(got, ShouldContain, "panels")
	})
}

func TestTerm(t *testing.T) {
	opts := DefaultOptions()

	Convey("Given a two character term", t, func() {
		term := NewTerm("Ab", opts)

		Convey("It filters locally but not on the server", func() {
			So(term.Active(), ShouldBeTrue)
			So(term.Prefix(), ShouldEqual, "")
		})
	})

	Convey("Given a single character term", t, func() {
		term := NewTerm("x", opts)
		So(term.Active(), ShouldBeFalse)
		So(term.Matches("anything", "at all"), ShouldBeTrue)
	})

	Convey("Given a long accented term", t, func() {
		term := NewTerm("  Manutenção preventiva", opts)

		Convey("The server prefix is the first six normalized characters", func() {
			So(term.Prefix(), ShouldEqual, "manute")
		})

		Convey("Matching is substring over title and description", func() {
			So(term.Matches("Plano de manutencao", "preventiva mensal"), ShouldBeTrue)
			So(term.Matches("Manutenção", "corretiva"), ShouldBeFalse)
		})
	})

	Convey("Given a three character term", t, func() {
		So(NewTerm("Seg", opts).Prefix(), ShouldEqual, "seg")
	})

	Convey("Given terms outside ASCII", t, func() {
		Convey("Length counts characters, not bytes", func() {
			So(NewTerm("ж", opts).Active(), ShouldBeFalse)
			So(NewTerm("жж", opts).Active(), ShouldBeTrue)
			So(NewTerm("日", opts).Prefix(), ShouldEqual, "")
			So(NewTerm("日本", opts).Prefix(), ShouldEqual, "")
			So(NewTerm("日本語", opts).Prefix(), ShouldEqual, "日本語")
		})

		Convey("The prefix is cut on a character boundary", func() {
			p := NewTerm("aпривет", opts).Prefix()
			So(p, ShouldEqual, "aприве")
			So(utf8.ValidString(p), ShouldBeTrue)
		})
	})
}
