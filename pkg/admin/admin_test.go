// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package admin

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/coldmesh/pkg/envelope"
	"github.com/Thermoquad/coldmesh/pkg/logging"
	"github.com/Thermoquad/coldmesh/pkg/mesh"
	"github.com/Thermoquad/coldmesh/pkg/radio"
	"github.com/Thermoquad/coldmesh/pkg/sensor"
)

type fakeWiFi struct {
	ssid, pass string
}

func (f *fakeWiFi) SetWiFi(ssid, pass string) error {
	if ssid == "" {
		return errors.New("empty ssid")
	}
	f.ssid, f.pass = ssid, pass
	return nil
}

// startNode runs a node and its admin server, returning a connected client
func startNode(t *testing.T, wifi WiFiStore) *Client {
	t.Helper()

	air := radio.NewAir(1)
	node, err := mesh.NewNode(air.Attach("A"), sensor.NewSim(1, 3, 4.0), mesh.Options{
		Self:     "AAA111",
		Roster:   []string{"AAA111"},
		Key:      envelope.DeriveKey("bowman#1"),
		IVSource: envelope.NewFastRand(1),
		Tick:     10 * time.Millisecond,
		Location: time.UTC,
		Rand:     rand.New(rand.NewSource(1)),
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	nodeDone := make(chan error, 1)
	srvDone := make(chan error, 1)
	go func() { nodeDone <- node.Run(ctx) }()
	go func() { srvDone <- Serve(ctx, l, NewService(node, wifi)) }()

	c, err := Dial(l.Addr().String())
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		cancel()
		assert.NoError(t, <-nodeDone)
		assert.NoError(t, <-srvDone)
	})
	return c
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// RPC methods
// ============================================================================

func TestStatus(t *testing.T) {
	c := startNode(t, nil)
	ctx := callCtx(t)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AAA111", st.Self)
	assert.True(t, st.ClockTrusted)
	assert.Equal(t, []string{"AAA111"}, st.Roster)
	assert.False(t, st.Silenced)
}

func TestTemps_IncludesSelf(t *testing.T) {
	c := startNode(t, nil)
	ctx := callCtx(t)

	// The first sensor read happens on the first step.
	require.Eventually(t, func() bool {
		peers, err := c.Temps(ctx)
		return err == nil && len(peers) == 1 && peers[0].Temps[0] != nil
	}, 2*time.Second, 20*time.Millisecond)

	peers, err := c.Temps(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AAA111", peers[0].ID)
	assert.True(t, peers[0].InRoster)
	assert.True(t, peers[0].TrustedClock)
}

func TestAddNode(t *testing.T) {
	c := startNode(t, nil)
	ctx := callCtx(t)

	roster, err := c.AddNode(ctx, "BBB222")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA111", "BBB222"}, roster)

	roster, err = c.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA111", "BBB222"}, roster)
}

func TestAddNode_Invalid(t *testing.T) {
	c := startNode(t, nil)
	ctx := callCtx(t)

	_, err := c.AddNode(ctx, "nope")
	assert.Error(t, err)

	_, err = c.AddNode(ctx, "AAA111")
	assert.Error(t, err, "duplicate id must be rejected")
}

func TestSilence(t *testing.T) {
	c := startNode(t, nil)
	ctx := callCtx(t)

	until, err := c.Silence(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), until, time.Minute)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Silenced)
}

func TestSetTime(t *testing.T) {
	c := startNode(t, nil)
	ctx := callCtx(t)

	want := time.Date(2030, 1, 2, 3, 4, 0, 0, time.UTC)
	require.NoError(t, c.SetTime(ctx, want))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, want, st.Time, 5*time.Second)
}

func TestSetNodeID(t *testing.T) {
	c := startNode(t, nil)
	ctx := callCtx(t)

	require.NoError(t, c.SetNodeID(ctx, "CCC333"))
	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CCC333", st.Self)

	assert.Error(t, c.SetNodeID(ctx, "x"))
}

func TestSetWiFi(t *testing.T) {
	wifi := &fakeWiFi{}
	c := startNode(t, wifi)
	ctx := callCtx(t)

	require.NoError(t, c.SetWiFi(ctx, "KIC-AAA111", "KeepItCold"))
	assert.Equal(t, "KIC-AAA111", wifi.ssid)
	assert.Equal(t, "KeepItCold", wifi.pass)

	assert.Error(t, c.SetWiFi(ctx, "", "x"))
}

func TestSetWiFi_Unavailable(t *testing.T) {
	c := startNode(t, nil)
	assert.Error(t, c.SetWiFi(callCtx(t), "KIC-AAA111", "KeepItCold"))
}

// ============================================================================
// Helpers
// ============================================================================

func TestParseSetTime(t *testing.T) {
	loc := time.FixedZone("test", -5*3600)

	got, err := ParseSetTime("2025,06,01,14,30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 14, 30, 0, 0, loc), got)

	got, err = ParseSetTime("2025-06-01T14:30:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)))

	for _, bad := range []string{"", "2025,06,01", "2025,13,01,00,00", "2025,06,01,24,00", "a,b,c,d,e"} {
		_, err := ParseSetTime(bad, loc)
		assert.Error(t, err, bad)
	}
}

func TestPeerReplies_NaNIsNull(t *testing.T) {
	rec := mesh.NewRecord("AAA111")
	rec.Temps[0] = 1.5
	rec.Temps[2] = -3.25
	snap := mesh.Snapshot{
		Peers:  []mesh.StatusRecord{rec},
		Roster: []string{"AAA111"},
	}

	out := peerReplies(snap)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Temps[0])
	assert.Equal(t, 1.5, *out[0].Temps[0])
	assert.Nil(t, out[0].Temps[1])
	require.NotNil(t, out[0].Temps[2])
	assert.Equal(t, -3.25, *out[0].Temps[2])
	assert.True(t, out[0].InRoster)
}
