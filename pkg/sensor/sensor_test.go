// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensor

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.True(t, math.IsNaN(Normalize(DisconnectedC)))
	assert.True(t, math.IsNaN(Normalize(math.Inf(1))))
	assert.Equal(t, 4.5, Normalize(4.5))
	assert.Equal(t, -20.0, Normalize(-20))
}

func TestRead_SimDisconnect(t *testing.T) {
	s := NewSim(1, 2, 4)

	r, err := Read(s)
	require.NoError(t, err)
	assert.False(t, r.Fault)
	assert.InDelta(t, 4, r.Temps[0], 1)
	assert.False(t, math.IsNaN(r.Temps[1]))
	assert.True(t, math.IsNaN(r.Temps[2]), "missing third probe reads NaN")

	s.Disconnect(0, true)
	r, err = Read(s)
	require.NoError(t, err)
	assert.True(t, r.Fault)
	assert.True(t, math.IsNaN(r.Temps[0]))

	s.Disconnect(0, false)
	r, _ = Read(s)
	assert.False(t, r.Fault)
}

func TestSim_StaysInBounds(t *testing.T) {
	s := NewSim(7, 1, 0)
	s.SetBounds(-1, 1)
	for i := 0; i < 1000; i++ {
		s.RequestConversion()
		c, err := s.ReadCelsius(0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, c, -1.0)
		require.LessOrEqual(t, c, 1.0)
	}
	_, err := s.ReadCelsius(3)
	assert.ErrorIs(t, err, ErrNoProbe)
}

func writeProbe(t *testing.T, root, id, content string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temperature"), []byte(content), 0o644))
}

func TestW1_ReadsSysfs(t *testing.T) {
	root := t.TempDir()
	writeProbe(t, root, "28-000000000001", "3125\n")
	writeProbe(t, root, "28-000000000002", "-18500\n")

	w, err := NewW1(root, nil)
	require.NoError(t, err)
	require.Equal(t, 2, w.Probes())

	r, err := Read(w)
	require.NoError(t, err)
	assert.Equal(t, 3.125, r.Temps[0])
	assert.Equal(t, -18.5, r.Temps[1])
	assert.False(t, r.Fault)
}

func TestW1_MissingDeviceIsDisconnected(t *testing.T) {
	w, err := NewW1(t.TempDir(), []string{"28-deadbeef0000"})
	require.NoError(t, err)

	c, err := w.ReadCelsius(0)
	require.NoError(t, err)
	assert.Equal(t, DisconnectedC, c)

	r, _ := Read(w)
	assert.True(t, r.Fault)
}

func TestW1_Garbage(t *testing.T) {
	root := t.TempDir()
	writeProbe(t, root, "28-000000000003", "not a number")
	w, _ := NewW1(root, nil)

	_, err := w.ReadCelsius(0)
	assert.Error(t, err)

	r, err := Read(w)
	assert.Error(t, err)
	assert.True(t, r.Fault)
}
