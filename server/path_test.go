package server

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVPathApply(t *testing.T) {
	tests := []struct {
		name  string
		start string
		arg   string
		want  string
	}{
		{"relative from root", "/", "docs", "/docs"},
		{"nested relative", "/docs", "a/b", "/docs/a/b"},
		{"absolute resets", "/docs/a", "/pub", "/pub"},
		{"dot is a no-op", "/docs", "./.", "/docs"},
		{"empty is a no-op", "/docs", "", "/docs"},
		{"dotdot pops", "/docs/a", "..", "/docs"},
		{"dotdot stops at root", "/docs", "../../..", "/"},
		{"duplicate slashes collapse", "/", "//a///b//", "/a/b"},
		{"trailing slash stripped", "/", "a/", "/a"},
		{"mixed", "/x", "a/../b/./c/..", "/x/b"},
		{"absolute dotdot", "/x/y", "/../etc", "/etc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := vpath(nil).apply(tt.start)
			assert.Equal(t, tt.want, start.apply(tt.arg).String())
		})
	}
}

func TestVPathApplyDoesNotMutate(t *testing.T) {
	p := vpath(nil).apply("/a/b")
	_ = p.apply("../c")
	_ = p.parent()
	assert.Equal(t, "/a/b", p.String())
}

func TestVPathParent(t *testing.T) {
	assert.Equal(t, "/", vpath(nil).parent().String())
	assert.Equal(t, "/", vpath(nil).apply("a").parent().String())
	assert.Equal(t, "/a", vpath(nil).apply("/a/b").parent().String())
}

// TestVPathInvariants applies random CWD/CDUP sequences and checks the
// rendered path stays normalized.
func TestVPathInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	pieces := []string{"", ".", "..", "a", "bb", "/", "//", "c d"}

	for i := 0; i < 500; i++ {
		var p vpath
		for j := 0; j < 20; j++ {
			if r.Intn(5) == 0 {
				p = p.parent()
				continue
			}
			var b strings.Builder
			for k := r.Intn(5); k >= 0; k-- {
				b.WriteString(pieces[r.Intn(len(pieces))])
				if r.Intn(2) == 0 {
					b.WriteString("/")
				}
			}
			p = p.apply(b.String())
		}

		s := p.String()
		assert.True(t, strings.HasPrefix(s, "/"), s)
		assert.NotContains(t, s, "//")
		if s != "/" {
			assert.False(t, strings.HasSuffix(s, "/"), s)
		}
		for _, seg := range p {
			assert.NotContains(t, []string{"", ".", ".."}, seg, s)
		}
	}
}
