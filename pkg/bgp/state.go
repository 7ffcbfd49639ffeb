// Copyright (C) 2014-2021 Nippon Telegraph and Telephone Corporation.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bgp holds the small set of RFC 4271 wire-level types the FSM
// needs as typed events. Encoding and decoding the actual OPEN, UPDATE,
// KEEPALIVE and NOTIFICATION byte layouts is out of scope (see spec.md
// §1) and lives upstream of this package.
package bgp

// FSMState is one of the eight RFC 4271 §8.2.1 session states.
type FSMState int

const (
	BGP_FSM_INITIAL FSMState = iota
	BGP_FSM_IDLE
	BGP_FSM_CONNECT
	BGP_FSM_ACTIVE
	BGP_FSM_OPENSENT
	BGP_FSM_OPENCONFIRM
	BGP_FSM_ESTABLISHED
	BGP_FSM_STOPPING
)

var fsmStateNameMap = map[FSMState]string{
	BGP_FSM_INITIAL:     "Initial",
	BGP_FSM_IDLE:        "Idle",
	BGP_FSM_CONNECT:     "Connect",
	BGP_FSM_ACTIVE:      "Active",
	BGP_FSM_OPENSENT:    "OpenSent",
	BGP_FSM_OPENCONFIRM: "OpenConfirm",
	BGP_FSM_ESTABLISHED: "Established",
	BGP_FSM_STOPPING:    "Stopping",
}

func (s FSMState) String() string {
	if n, ok := fsmStateNameMap[s]; ok {
		return n
	}
	return "Unknown"
}

// Ordinal distinguishes the outbound-connect leg of a peering from the
// inbound-accept leg (spec.md §3, §9 "dual-connection race").
type Ordinal int

const (
	Primary Ordinal = iota
	Secondary
)

func (o Ordinal) String() string {
	if o == Primary {
		return "primary"
	}
	return "secondary"
}

func (o Ordinal) Other() Ordinal {
	if o == Primary {
		return Secondary
	}
	return Primary
}

// AllowedModes restricts which ordinal(s) a Session is permitted to run.
type AllowedModes int

const (
	ConnectOnly AllowedModes = iota
	AcceptOnly
	Both
)
