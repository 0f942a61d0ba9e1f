package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresent(t *testing.T) {
	cases := map[string]bool{
		``:                       false,
		`null`:                   false,
		`  null `:                false,
		`{}`:                     false,
		`{ }`:                    false,
		"{\n}":                   false,
		`[ ]`:                    false,
		"[\n\t]":                 false,
		`""`:                     false,
		`"  "`:                   false,
		`{"content":"Purpose"}`:  true,
		`{ "content": "" }`:      true,
		`[1]`:                    true,
		`"charter text"`:         true,
		`not json but non-empty`: true,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Present(json.RawMessage(raw)), "%q", raw)
	}
}
