package deadline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAndRemaining(t *testing.T) {
	d := Now().Add(50)
	rem := d.Remaining()
	assert.False(t, d.Passed())
	assert.True(t, rem.Millis() > 0)
	assert.True(t, rem.Millis() <= 50)
}

func TestPassedForPastDeadline(t *testing.T) {
	d := Now().Add(-10)
	assert.True(t, d.Passed())
	assert.Equal(t, Deadline{}, d.Remaining())
}

func TestAddNormalizesOverflowUsec(t *testing.T) {
	d := Deadline{Sec: 1, Usec: 900000}.Add(200)
	assert.Equal(t, int64(2), d.Sec)
	assert.Equal(t, int64(100000), d.Usec)
}

func TestAddNormalizesNegativeUsec(t *testing.T) {
	d := Deadline{Sec: 5, Usec: 100}.Add(-1000)
	assert.Equal(t, int64(4), d.Sec)
	assert.Equal(t, int64(100), d.Usec)
}
