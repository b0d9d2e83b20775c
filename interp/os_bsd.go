//go:build unix && !linux

// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import "golang.org/x/sys/unix"

const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETAW
)
