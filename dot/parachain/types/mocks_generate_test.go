// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

//go:generate mockgen -destination=mocks.go -package=$GOPACKAGE . BlockState,RuntimeInstance
