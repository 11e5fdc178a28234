package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got []string
	SetLogger(func(format string, v ...any) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("stable sign: %s", "ram")
	assert.Equal(t, []string{"stable sign: ram"}, got)

	SetLogger(nil)
	Logf("muted")
	assert.Len(t, got, 1, "nil installs a no-op logger")
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("value: %d", 1) })
}
