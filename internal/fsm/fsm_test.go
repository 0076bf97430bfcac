// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type state string
type event string

const (
	stateDiscovered state = "discovered"
	stateCutting    state = "cutting"
	stateCut        state = "cut"
	stateErrored    state = "errored"

	eventCut   event = "cut"
	eventError event = "error"
)

func testMachine(t *testing.T) *Machine[state, event] {
	t.Helper()
	m, err := New(stateDiscovered, []Transition[state, event]{
		{From: stateDiscovered, Event: eventCut, To: stateCutting},
		{From: stateCutting, Event: eventCut, To: stateCut},
		{From: stateDiscovered, Event: eventError, To: stateErrored},
		{From: stateCutting, Event: eventError, To: stateErrored},
	})
	require.NoError(t, err)
	return m
}

func TestMachineFiresKnownTransition(t *testing.T) {
	m := testMachine(t)
	to, err := m.Fire(context.Background(), eventCut)
	require.NoError(t, err)
	require.Equal(t, stateCutting, to)
	require.Equal(t, stateCutting, m.State())
}

func TestMachineRejectsUnknownTransition(t *testing.T) {
	m := testMachine(t)
	_, err := m.Fire(context.Background(), eventCut) // discovered -> cutting
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), eventCut) // cutting -> cut
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), eventCut) // cut has no "cut" transition
	require.Error(t, err)
	require.Equal(t, stateCut, m.State(), "state must not change on a rejected transition")
}

func TestMachineGuardBlocksTransition(t *testing.T) {
	sentinel := errors.New("guard rejected")
	m, err := New(stateDiscovered, []Transition[state, event]{
		{
			From:  stateDiscovered,
			Event: eventCut,
			To:    stateCutting,
			Guard: func(ctx context.Context, from state, e event) error { return sentinel },
		},
	})
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), eventCut)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, stateDiscovered, m.State())
}

func TestMachineActionErrorBlocksCommit(t *testing.T) {
	sentinel := errors.New("action failed")
	m, err := New(stateDiscovered, []Transition[state, event]{
		{
			From:   stateDiscovered,
			Event:  eventCut,
			To:     stateCutting,
			Action: func(ctx context.Context, from, to state, e event) error { return sentinel },
		},
	})
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), eventCut)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, stateDiscovered, m.State())
}

func TestNewRejectsDuplicateTransitions(t *testing.T) {
	_, err := New(stateDiscovered, []Transition[state, event]{
		{From: stateDiscovered, Event: eventCut, To: stateCutting},
		{From: stateDiscovered, Event: eventCut, To: stateErrored},
	})
	require.Error(t, err)
}
