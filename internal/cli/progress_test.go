package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewSyncProgress(&out)

	p.Update(1, 3, true)
	p.Update(2, 3, false)
	p.Update(3, 3, true)

	assert.Equal(t, 1, p.Failed())
	assert.Contains(t, out.String(), "3/3")
}
