package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/nexus/internal/doc"
)

func TestSubsetMatch(t *testing.T) {
	actual := doc.Object{
		"name": doc.String("x"),
		"rev":  doc.Int(2),
		"tags": doc.Array{doc.String("a"), doc.String("b")},
		"nested": doc.Object{
			"size": doc.Int(6),
			"type": doc.String("text/plain"),
		},
	}

	tests := []struct {
		name     string
		expected doc.Value
		want     bool
	}{
		{"scalar", doc.Object{"name": doc.String("x")}, true},
		{"number", doc.Object{"rev": doc.Number("2")}, true},
		{"wrong scalar", doc.Object{"name": doc.String("y")}, false},
		{"missing key", doc.Object{"other": doc.String("x")}, false},
		{"nested subset", doc.Object{"nested": doc.Object{"size": doc.Int(6)}}, true},
		{"arrays exact", doc.Object{"tags": doc.Array{doc.String("a")}}, false},
		{"type mismatch", doc.Object{"nested": doc.String("x")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subsetMatch(tt.expected, actual))
		})
	}
}

func TestCheck(t *testing.T) {
	text := "hello\n"
	resp := response{status: 404, body: []byte(`{"code":"ResourceNotFound","message":"gone"}`)}

	assert.Empty(t, check(Expect{Status: 404, Code: "ResourceNotFound", Contains: []string{"gone"}}, resp))

	failures := check(Expect{Status: 200, Code: "Other", Text: &text}, resp)
	assert.Len(t, failures, 3)
}
