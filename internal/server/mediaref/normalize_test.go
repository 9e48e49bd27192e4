package mediaref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"/api/media/a":                              "/api/media/a",
		"/api/media/a?w=800&q=75":                   "/api/media/a",
		"/api/media/a#frag":                         "/api/media/a",
		"https://blog.example.com/api/media/a?w=10": "/api/media/a",
		"https://cdn.example.com/images/x.png?v=2":  "https://cdn.example.com/images/x.png",
		"  /api/media/a  ":                          "/api/media/a",
		"?only=query":                               "",
		"":                                          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}
